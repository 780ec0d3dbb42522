package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/config"
	"dealboard/internal/eventbus"
	"dealboard/internal/storage"
)

type countingSound struct{ n atomic.Int32 }

func (s *countingSound) Play(context.Context) error { s.n.Add(1); return nil }

type fakeBackend struct {
	mu     sync.Mutex
	viewed []string
	polls  int
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/deals/pending", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.polls++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"notifications":[{"id":101,"dealName":"Acme","amount":5000,"ownerName":"Ana Souza"}],"count":1}`))
	})
	mux.HandleFunc("POST /api/deals/mark-viewed/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.viewed = append(f.viewed, r.PathValue("id")+"@"+r.URL.Query().Get("client_id"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func (f *fakeBackend) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.viewed...)
}

func writeConfig(t *testing.T, dir string, cfg map[string]any) string {
	t.Helper()
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func startApp(t *testing.T, cfgPath string, clock *celebration.ManualClock, sound celebration.Sound) (*App, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewApp(cfgPath, WithClock(clock), WithListener(ln), WithSound(sound))
	if err != nil {
		_ = ln.Close()
		t.Fatal(err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return a, "http://" + ln.Addr().String()
}

func TestAppCelebratesAndAcknowledges(t *testing.T) {
	fb := &fakeBackend{}
	ts := httptest.NewServer(fb.handler())
	defer ts.Close()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]any{
		"logging":     map[string]any{"level": "error"},
		"backend":     map[string]any{"base_url": ts.URL, "client_id": "panel-test"},
		"polling":     map[string]any{"enabled": true, "schedule": "1h"},
		"celebration": map[string]any{"theme": "natal"},
		"storage":     map[string]any{"driver": "file", "path": filepath.Join(dir, "data", "dealboard")},
	})

	clock := celebration.NewManualClock(time.Now())
	sound := &countingSound{}
	a, base := startApp(t, cfgPath, clock, sound)

	waitFor(t, "presentation", func() bool {
		return a.Engine().Snapshot().Active == "101" && clock.Pending() == 1
	})
	if sound.n.Load() != 1 {
		t.Fatalf("sound plays=%d", sound.n.Load())
	}

	clock.Advance(celebration.DefaultAnimationDuration)
	clock.Advance(celebration.DefaultFadeOut)

	waitFor(t, "acknowledgment", func() bool {
		v := fb.snapshot()
		return len(v) == 1 && v[0] == "101@panel-test"
	})
	if got := a.Engine().State("101"); got != celebration.StateAcknowledged {
		t.Fatalf("state=%v", got)
	}

	waitFor(t, "journal", func() bool {
		entries, err := a.store.RecentPresentations(context.Background(), 10)
		if err != nil || len(entries) != 2 {
			return false
		}
		return entries[0].Event == storage.EventAcknowledged &&
			entries[1].Event == storage.EventPresented &&
			entries[1].DealName == "Acme" &&
			entries[1].ClientID == "panel-test"
	})

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["client_id"] != "panel-test" || health["status"] != "ok" {
		t.Fatalf("health=%v", health)
	}

	tr, err := http.Get(base + "/api/celebrations/theme")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Body.Close()
	var theme struct{ Theme string }
	if err := json.NewDecoder(tr.Body).Decode(&theme); err != nil {
		t.Fatal(err)
	}
	if theme.Theme != "natal" {
		t.Fatalf("theme=%q", theme.Theme)
	}
}

func TestAppTestCelebrationIsNeverAcknowledged(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, map[string]any{
		"logging": map[string]any{"level": "error"},
	})

	clock := celebration.NewManualClock(time.Now())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewApp(cfgPath, WithClock(clock), WithListener(ln), WithSound(&countingSound{}))
	if err != nil {
		t.Fatal(err)
	}
	events, unsub := a.Bus().Subscribe(32)
	defer unsub()
	if err := a.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	}()

	resp, err := http.Post("http://"+ln.Addr().String()+"/api/celebrations/test", "application/json", strings.NewReader(`{"dealName":"Demo"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	waitFor(t, "presentation timer", func() bool { return clock.Pending() == 1 })
	clock.Advance(celebration.DefaultAnimationDuration + celebration.DefaultFadeOut)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == celebration.EventAcknowledged {
				t.Fatal("synthetic id acknowledged")
			}
			if e.Type == celebration.EventAckSkipped {
				return
			}
		case <-timeout:
			t.Fatal("no ack_skipped event")
		}
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	cases := map[string]map[string]any{
		"polling without backend": {"polling": map[string]any{"enabled": true}},
		"unknown profile base": {"chromakey": map[string]any{
			"profiles": map[string]any{"studio": map[string]any{"base": "magenta"}},
		}},
		"mascot without frames": {"chromakey": map[string]any{"enabled": true}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), cfg)
			if _, err := NewApp(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      *config.StorageConfig
		driver  string
		enabled bool
		wantErr bool
	}{
		{name: "absent", in: nil},
		{name: "none", in: &config.StorageConfig{Driver: "none"}},
		{name: "file default path", in: &config.StorageConfig{Driver: "file"}, driver: "file", enabled: true},
		{name: "sqlite", in: &config.StorageConfig{Driver: "SQLite", Path: "x.db", BusyTimeout: "2s"}, driver: "sqlite", enabled: true},
		{name: "sqlite needs path", in: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "postgres", in: &config.StorageConfig{Driver: "postgres", DSN: "postgres://x"}, driver: "postgres", enabled: true},
		{name: "unknown", in: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, enabled, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v", err)
			}
			if enabled != tc.enabled || sc.Driver != tc.driver {
				t.Fatalf("got %+v enabled=%v", sc, enabled)
			}
		})
	}
}

func TestJournalEntry(t *testing.T) {
	t.Parallel()
	at := time.Unix(1700000000, 0)
	n := celebration.Notification{ID: "7", DealName: "Globex", Amount: 7000}
	e := eventbus.Event{
		Type: celebration.EventAckFailed,
		Time: at,
		Data: celebration.LifecycleEvent{ID: "7", Notification: &n, At: at, Error: "boom"},
	}
	got, ok := journalEntry(e, "panel-1")
	if !ok {
		t.Fatal("not journaled")
	}
	if got.Event != storage.EventAckFailed || got.DealID != "7" || got.DealName != "Globex" ||
		got.Amount != 7000 || got.Error != "boom" || got.ClientID != "panel-1" || !got.At.Equal(at) {
		t.Fatalf("entry=%+v", got)
	}

	if _, ok := journalEntry(eventbus.Event{Type: celebration.EventQueued, Data: celebration.LifecycleEvent{ID: "7"}}, ""); ok {
		t.Fatal("queued events are not journaled")
	}
}

func TestApplyEnvFillsOnlyEmptySecrets(t *testing.T) {
	t.Setenv(EnvBackendToken, "from-env")
	t.Setenv(EnvTelegramToken, "tg-env")

	cfg := &config.Config{Telegram: &config.TelegramConfig{}}
	applyEnv(cfg)
	if cfg.Backend.Token != "from-env" || cfg.Telegram.Token != "tg-env" {
		t.Fatalf("cfg=%+v %+v", cfg.Backend, cfg.Telegram)
	}

	cfg = &config.Config{Backend: config.BackendConfig{Token: "file"}}
	applyEnv(cfg)
	if cfg.Backend.Token != "file" {
		t.Fatalf("token=%q", cfg.Backend.Token)
	}
}

func TestValidateLive(t *testing.T) {
	t.Parallel()
	ok := &config.Config{Polling: config.PollingConfig{Schedule: "5s"}}
	if err := validateLive(context.Background(), ok); err != nil {
		t.Fatal(err)
	}
	bad := &config.Config{Polling: config.PollingConfig{Schedule: "every: banana"}}
	if err := validateLive(context.Background(), bad); err == nil {
		t.Fatal("bad schedule accepted")
	}
}
