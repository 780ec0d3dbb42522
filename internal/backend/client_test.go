package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dealboard/internal/leaderboard"
)

type fakeAPI struct {
	mu     sync.Mutex
	viewed []string
	since  string
	auth   string
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/deals/pending", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("client_id") != "panel-1" {
			http.Error(w, "missing client", http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.since = r.URL.Query().Get("since")
		f.auth = r.Header.Get("Authorization")
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"notifications":[{"id":2,"dealName":"B","amount":2000},{"id":"1","dealName":"A","amount":1000}],"count":2}`))
	})
	mux.HandleFunc("POST /api/deals/mark-viewed/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "500" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		f.mu.Lock()
		f.viewed = append(f.viewed, r.PathValue("id")+"@"+r.URL.Query().Get("client_id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/destaques/sdrs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("periodo") != "semana" || r.URL.Query().Get("pipeline") != "4007305" {
			t.Errorf("query=%s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"status":"success","periodo":"semana","pipeline":"4007305","top3":[{"position":1,"userName":"Gabriela","scheduledCount":12}]}`))
	})
	return mux
}

func (f *fakeAPI) snapshot() (since, auth string, viewed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.since, f.auth, append([]string(nil), f.viewed...)
}

func newTestClient(t *testing.T) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL + "/", Token: "s3cret", ClientID: "panel-1"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	return c, api
}

func TestFetchPendingKeepsOrderAndSendsFilters(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	since := time.Date(2025, 11, 28, 12, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	got, err := c.FetchPending(context.Background(), since)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].ID != "1" {
		t.Fatalf("got=%+v", got)
	}
	if s, auth, _ := api.snapshot(); s != "2025-11-28T15:00:00Z" || auth != "Bearer s3cret" {
		t.Fatalf("since=%q auth=%q", s, auth)
	}
}

func TestMarkViewed(t *testing.T) {
	t.Parallel()
	c, api := newTestClient(t)
	ctx := context.Background()
	if err := c.MarkViewed(ctx, "98765"); err != nil {
		t.Fatal(err)
	}
	if _, _, viewed := api.snapshot(); len(viewed) != 1 || viewed[0] != "98765@panel-1" {
		t.Fatalf("viewed=%v", viewed)
	}

	var se *StatusError
	if err := c.MarkViewed(ctx, "500"); !errors.As(err, &se) || se.Status != 500 || !strings.Contains(se.Body, "boom") {
		t.Fatalf("err=%v", err)
	}
	if err := c.MarkViewed(ctx, "test-1-abc"); err == nil {
		t.Fatal("synthetic id must be refused")
	}
	if _, _, viewed := api.snapshot(); len(viewed) != 1 {
		t.Fatalf("viewed=%v", viewed)
	}
}

func TestFetchPodium(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)
	p, err := c.FetchPodium(context.Background(), leaderboard.KindSDR, "semana", "4007305")
	if err != nil {
		t.Fatal(err)
	}
	r, ok := p.Records[0].(leaderboard.SDRRecord)
	if !ok || r.ScheduledCount != 12 || p.Kind != leaderboard.KindSDR {
		t.Fatalf("podium=%+v", p)
	}

	if _, err := c.FetchPodium(context.Background(), leaderboard.KindEV, "", ""); err == nil {
		t.Fatal("expected 404 error")
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, nil); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("err=%v", err)
	}
	c, err := New(Config{BaseURL: "http://x", Timeout: time.Second}, nil)
	if err != nil || c.http.Timeout != time.Second {
		t.Fatalf("c=%+v err=%v", c, err)
	}
}
