package celebration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealboard/internal/eventbus"
	logx "dealboard/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrAckQueueFull = errors.New("ack queue full")
	ErrAckStopped   = errors.New("ack worker stopped")
)

// Sender delivers one acknowledgment to the backend.
type Sender interface {
	MarkViewed(ctx context.Context, id ID) error
}

type AckConfig struct {
	QueueSize  int
	RatePerSec int
	Timeout    time.Duration // per request
}

// AckWorker sends acknowledgments in the order they were handed over, from
// a single goroutine. Failures are logged and dropped; nothing is retried.
type AckWorker struct {
	sender  Sender
	bus     eventbus.Bus
	log     logx.Logger
	warn    *logx.Sampler
	timeout time.Duration
	limiter *rate.Limiter

	mu      sync.Mutex
	queue   chan Notification
	stopped bool

	drained   chan struct{}
	drainOnce sync.Once
}

func NewAckWorker(cfg AckConfig, sender Sender, bus eventbus.Bus, log logx.Logger) *AckWorker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &AckWorker{
		sender:  sender,
		bus:     bus,
		log:     log.With(logx.String("comp", "ack")),
		warn:    logx.NewSampler(2),
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan Notification, cfg.QueueSize),
		drained: make(chan struct{}),
	}
}

// Acknowledge hands n to the worker without blocking.
func (w *AckWorker) Acknowledge(n Notification) {
	if err := w.enqueue(n); err != nil {
		w.warn.Warn(w.log, "acknowledgment dropped", logx.String("id", n.ID.String()), logx.Err(err))
		w.publish(EventAckDropped, n, err)
	}
}

func (w *AckWorker) enqueue(n Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrAckStopped
	}
	select {
	case w.queue <- n:
		return nil
	default:
		return ErrAckQueueFull
	}
}

// Run consumes the queue until ctx is done or, after Stop, the queue is empty.
func (w *AckWorker) Run(ctx context.Context) error {
	defer w.drainOnce.Do(func() { close(w.drained) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-w.queue:
			if !ok {
				return nil
			}
			w.send(ctx, n)
		}
	}
}

func (w *AckWorker) send(ctx context.Context, n Notification) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.sender.MarkViewed(cctx, n.ID)
	cancel()
	if err != nil {
		w.warn.Warn(w.log, "mark viewed failed", logx.String("id", n.ID.String()), logx.Err(err))
		w.publish(EventAckFailed, n, err)
		return
	}
	w.log.Debug("deal marked viewed", logx.String("id", n.ID.String()))
	w.publish(EventAcknowledged, n, nil)
}

// Stop closes intake. A running Run keeps sending what is already queued
// until its context ends.
func (w *AckWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.queue)
	}
}

// Flush stops intake and waits for Run to send the queued items. It fails
// when ctx ends first or Run returned with items left.
func (w *AckWorker) Flush(ctx context.Context) error {
	w.Stop()
	select {
	case <-w.drained:
	case <-ctx.Done():
		return fmt.Errorf("ack flush: %w (%d pending)", ctx.Err(), len(w.queue))
	}
	if n := len(w.queue); n > 0 {
		return fmt.Errorf("ack flush: %d pending", n)
	}
	return nil
}

func (w *AckWorker) publish(typ string, n Notification, err error) {
	if w.bus == nil {
		return
	}
	ev := LifecycleEvent{ID: n.ID, Notification: &n, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	w.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}
