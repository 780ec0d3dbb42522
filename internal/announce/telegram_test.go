package announce

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	chat int64
	what interface{}
	opts *tele.SendOptions
}

type fakeBot struct {
	mu   sync.Mutex
	msgs []sent
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{what: what}
	if c, ok := to.(*tele.Chat); ok {
		s.chat = c.ID
	}
	if len(opts) > 0 {
		s.opts, _ = opts[0].(*tele.SendOptions)
	}
	f.msgs = append(f.msgs, s)
	return &tele.Message{}, f.err
}

func (f *fakeBot) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.msgs...)
}

func runUntil(t *testing.T, tg *Telegram, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = tg.Run(ctx); close(done) }()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestTelegramPostsCardForRealDeals(t *testing.T) {
	t.Parallel()
	bot := &fakeBot{}
	tg := NewWithSender(Config{ChatID: -100, ThreadID: 7}, bot, logx.Nop())
	ctx := context.Background()

	o := overlay.Overlay{ID: "98765", Title: overlay.ThemeBlackNovember.Title(), DealName: "Acme", AmountText: "R$ 5.000"}
	_ = tg.Show(ctx, overlay.Overlay{ID: "test-1-abcdef"})
	_ = tg.Show(ctx, o)

	runUntil(t, tg, func() bool { return tg.Stats().Sent == 1 })
	msgs := bot.all()
	if len(msgs) != 1 {
		t.Fatalf("msgs=%d", len(msgs))
	}
	m := msgs[0]
	photo, ok := m.what.(*tele.Photo)
	if !ok || m.chat != -100 || m.opts == nil || m.opts.ThreadID != 7 {
		t.Fatalf("sent=%+v", m)
	}
	if !strings.Contains(photo.Caption, "CONTRATO ASSINADO") || !strings.Contains(photo.Caption, "💰 Valor: R$ 5.000") {
		t.Fatalf("caption=%q", photo.Caption)
	}
}

func TestTelegramQueueFullDrops(t *testing.T) {
	t.Parallel()
	tg := NewWithSender(Config{QueueSize: 1, AnnounceTests: true}, &fakeBot{err: errors.New("429")}, logx.Nop())
	_ = tg.Show(context.Background(), overlay.Overlay{ID: "test-a"})
	_ = tg.Show(context.Background(), overlay.Overlay{ID: "test-b"})
	if tg.Stats().Dropped != 1 {
		t.Fatalf("stats=%+v", tg.Stats())
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err=%v", err)
	}
}
