package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/eventbus"
	logx "dealboard/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		in   string
		next time.Duration
	}{
		{"", 3 * time.Second},
		{"@every 3s", 3 * time.Second},
		{"5s", 5 * time.Second},
		{"interval:00:10", 10 * time.Second},
		{"every:01:00:00", time.Hour},
		{"*/15 * * * * *", 15 * time.Second},
		{"cron:*/2 * * * *", 2 * time.Minute},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			s, err := ParseSchedule(c.in)
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Next(base).Sub(base); got != c.next {
				t.Fatalf("next=%v want %v", got, c.next)
			}
		})
	}

	for _, bad := range []string{"soon", "100ms", "00:75", "cron:", "interval:", "@yearlyish"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Errorf("ParseSchedule(%q) succeeded", bad)
		}
	}
}

type fakeSource struct {
	mu    sync.Mutex
	batch []celebration.Notification
	err   error
	since []time.Time
	gate  chan struct{}
}

func (f *fakeSource) FetchPending(ctx context.Context, since time.Time) ([]celebration.Notification, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	return f.batch, f.err
}

type recordingSink struct {
	mu   sync.Mutex
	ids  []celebration.ID
	seen map[celebration.ID]bool
}

func (s *recordingSink) Enqueue(n celebration.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = map[celebration.ID]bool{}
	}
	if s.seen[n.ID] {
		return false
	}
	s.seen[n.ID] = true
	s.ids = append(s.ids, n.ID)
	return true
}

func TestPollOnceEnqueuesInResponseOrder(t *testing.T) {
	t.Parallel()
	since := time.Unix(1700000000, 0)
	src := &fakeSource{batch: []celebration.Notification{{ID: "9"}, {ID: ""}, {ID: "3"}, {ID: "9"}}}
	sink := &recordingSink{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	p := New(Config{Since: since}, src, sink, bus, logx.Nop())
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(sink.ids) != "[9 3]" {
		t.Fatalf("ids=%v", sink.ids)
	}
	if !src.since[0].Equal(since) {
		t.Fatalf("since=%v", src.since)
	}
	if e := <-events; e.Type != EventPolled || e.Data.(int) != 2 {
		t.Fatalf("event=%+v", e)
	}
	if st := p.Stats(); st.Polls != 1 || st.Enqueued != 2 || st.LastOK.IsZero() {
		t.Fatalf("stats=%+v", st)
	}

	// second poll sees the same ids: nothing new
	_ = p.PollOnce(context.Background())
	if len(sink.ids) != 2 {
		t.Fatalf("ids=%v", sink.ids)
	}
}

func TestPollOnceFailureIsReported(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	p := New(Config{}, &fakeSource{err: boom}, &recordingSink{}, nil, logx.Nop())
	if err := p.PollOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if st := p.Stats(); st.Failures != 1 || !st.LastOK.IsZero() {
		t.Fatalf("stats=%+v", st)
	}
}

func TestPollOnceSkipsWhileInFlight(t *testing.T) {
	t.Parallel()
	src := &fakeSource{gate: make(chan struct{})}
	p := New(Config{}, src, &recordingSink{}, nil, logx.Nop())

	done := make(chan struct{})
	go func() { _ = p.PollOnce(context.Background()); close(done) }()
	deadline := time.Now().Add(2 * time.Second)
	for !p.running.Load() {
		if time.Now().After(deadline) {
			t.Fatal("first poll never started")
		}
		time.Sleep(time.Millisecond)
	}
	_ = p.PollOnce(context.Background())
	close(src.gate)
	<-done
	if st := p.Stats(); st.Skipped != 1 || st.Polls != 1 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestRunPollsImmediatelyAndStops(t *testing.T) {
	t.Parallel()
	src := &fakeSource{batch: []celebration.Notification{{ID: "1"}}}
	sink := &recordingSink{}
	p := New(Config{Schedule: "1h"}, src, sink, nil, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().Polls == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no immediate poll")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Apply(ctx, "30m", 0); err != nil {
		t.Fatal(err)
	}
	if err := p.Apply(ctx, "nope", 0); err == nil {
		t.Fatal("bad schedule accepted")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
