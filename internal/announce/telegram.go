// Package announce posts celebrations to a Telegram chat.
package announce

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/chromakey"
	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"
	"dealboard/pkg/tgui"

	tele "gopkg.in/telebot.v4"
)

var ErrNoToken = errors.New("telegram token is empty")

type Config struct {
	Token    string
	ChatID   int64
	ThreadID int
	// AnnounceTests also posts locally generated test celebrations.
	AnnounceTests bool
	QueueSize     int
}

// Sender is the part of *tele.Bot used here.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Telegram is a display host that posts a card and the deal summary when a
// celebration starts. Sending happens on Run's goroutine so Show never blocks.
type Telegram struct {
	cfg  Config
	bot  Sender
	log  logx.Logger
	warn *logx.Sampler

	queue   chan overlay.Overlay
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNoToken
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return NewWithSender(cfg, b, log), nil
}

func NewWithSender(cfg Config, bot Sender, log logx.Logger) *Telegram {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	return &Telegram{
		cfg:   cfg,
		bot:   bot,
		log:   log.With(logx.String("comp", "announce.telegram")),
		warn:  logx.NewSampler(1),
		queue: make(chan overlay.Overlay, cfg.QueueSize),
	}
}

func (t *Telegram) Show(_ context.Context, o overlay.Overlay) error {
	if !o.ID.IsReal() && !t.cfg.AnnounceTests {
		return nil
	}
	select {
	case t.queue <- o:
	default:
		t.dropped.Add(1)
		t.log.Warn("announcement dropped, queue full", logx.String("id", o.ID.String()))
	}
	return nil
}

func (t *Telegram) Hide(context.Context, celebration.ID) error   { return nil }
func (t *Telegram) Remove(context.Context, celebration.ID) error { return nil }

func (t *Telegram) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-t.queue:
			start := time.Now()
			if err := t.send(o); err != nil {
				t.warn.Warn(t.log, "announcement failed", logx.String("id", o.ID.String()), logx.Err(err))
				continue
			}
			t.sent.Add(1)
			t.log.Debug("announcement sent", logx.String("id", o.ID.String()), logx.Duration("took", time.Since(start)))
		}
	}
}

func (t *Telegram) send(o overlay.Overlay) error {
	chat := &tele.Chat{ID: t.cfg.ChatID}
	opts := &tele.SendOptions{ThreadID: t.cfg.ThreadID, ParseMode: tele.ModeHTML}
	caption := tgui.Caption(o.Title, o.Body()).String()

	card, err := chromakey.EncodePNG(o.Card())
	if err != nil {
		_, err = t.bot.Send(chat, caption, opts)
		return err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(card)), Caption: caption}
	_, err = t.bot.Send(chat, photo, opts)
	return err
}

type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

func (t *Telegram) Stats() Stats {
	return Stats{Sent: t.sent.Load(), Dropped: t.dropped.Load()}
}
