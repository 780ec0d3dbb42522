package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "dealboard/pkg/logx"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	out := map[string]Store{}
	for _, cfg := range []Config{
		{Driver: "file", Path: filepath.Join(dir, "file", "dealboard")},
		{Driver: "sqlite", Path: filepath.Join(dir, "sqlite", "dealboard.db"), BusyTimeout: time.Second},
	} {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("open %s: %v", cfg.Driver, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[cfg.Driver] = st
	}
	return out
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Logger{})
	if err != nil || st != nil {
		t.Fatalf("got %v, %v", st, err)
	}
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}

func TestKV(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.GetKV(ctx, "client_id"); err != nil || ok {
				t.Fatalf("missing key: ok=%v err=%v", ok, err)
			}
			if err := st.PutKV(ctx, "client_id", "panel-a"); err != nil {
				t.Fatal(err)
			}
			if err := st.PutKV(ctx, "client_id", "panel-b"); err != nil {
				t.Fatal(err)
			}
			v, ok, err := st.GetKV(ctx, "client_id")
			if err != nil || !ok || v != "panel-b" {
				t.Fatalf("got %q ok=%v err=%v", v, ok, err)
			}
		})
	}
}

func TestPresentationJournalNewestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for i, id := range []string{"1", "2", "3"} {
				err := st.AppendPresentation(ctx, PresentationEntry{
					At: base.Add(time.Duration(i) * time.Second), DealID: id, Event: EventPresented, Amount: 5000,
				})
				if err != nil {
					t.Fatal(err)
				}
			}
			got, err := st.RecentPresentations(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].DealID != "3" || got[1].DealID != "2" {
				t.Fatalf("got %+v", got)
			}
			if got[0].Amount != 5000 || got[0].Event != EventPresented {
				t.Fatalf("fields lost: %+v", got[0])
			}
		})
	}
}

func TestFileKVSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < kvCompactEvery+3; i++ {
		if err := st.PutKV(ctx, "theme", "natal"); err != nil {
			t.Fatal(err)
		}
	}
	_ = st.PutKV(ctx, "theme", "padrao")
	_ = st.Close()

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	v, ok, _ := st.GetKV(ctx, "theme")
	if !ok || v != "padrao" {
		t.Fatalf("theme=%q ok=%v", v, ok)
	}
}

func TestRebind(t *testing.T) {
	t.Parallel()
	s := &sqlStore{postgres: true}
	if got := s.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Fatalf("got %q", got)
	}
	s.postgres = false
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("got %q", got)
	}
}
