// Package poller periodically asks the backend for pending deal
// notifications and hands them to the celebration engine in arrival order.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/eventbus"
	logx "dealboard/pkg/logx"

	"github.com/robfig/cron/v3"
)

const (
	EventPolled     = "poller.polled"
	EventPollFailed = "poller.failed"
)

type Source interface {
	FetchPending(ctx context.Context, since time.Time) ([]celebration.Notification, error)
}

type Sink interface {
	Enqueue(n celebration.Notification) bool
}

type Config struct {
	Schedule string
	// Since filters out notifications created before the agent started.
	Since   time.Time
	Timeout time.Duration
}

type Stats struct {
	Polls    uint64    `json:"polls"`
	Failures uint64    `json:"failures"`
	Skipped  uint64    `json:"skipped"`
	Enqueued uint64    `json:"enqueued"`
	LastOK   time.Time `json:"lastOk"`
}

type Poller struct {
	src  Source
	sink Sink
	bus  eventbus.Bus
	log  logx.Logger
	warn *logx.Sampler

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	entry   cron.EntryID
	running atomic.Bool

	polls, failures, skipped, enqueued atomic.Uint64
	lastOK                             atomic.Int64
}

func New(cfg Config, src Source, sink Sink, bus eventbus.Bus, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Poller{
		src:  src,
		sink: sink,
		bus:  bus,
		log:  log.With(logx.String("comp", "poller")),
		warn: logx.NewSampler(1),
		cfg:  cfg,
	}
}

// PollOnce fetches pending notifications and enqueues them in the order the
// backend returned them. A poll that starts while another is in flight is
// skipped.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return nil
	}
	defer p.running.Store(false)

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	p.polls.Add(1)
	items, err := p.src.FetchPending(ctx, cfg.Since)
	if err != nil {
		p.failures.Add(1)
		p.warn.Warn(p.log, "poll failed", logx.Err(err))
		p.publish(EventPollFailed, err.Error())
		return err
	}
	p.lastOK.Store(time.Now().UnixNano())

	added := 0
	for _, n := range items {
		if n.ID == "" {
			p.log.Debug("notification without id ignored", logx.String("deal", n.DealName))
			continue
		}
		if p.sink.Enqueue(n) {
			added++
		}
	}
	p.enqueued.Add(uint64(added))
	if added > 0 {
		p.log.Info("notifications queued", logx.Int("received", len(items)), logx.Int("queued", added))
	}
	p.publish(EventPolled, added)
	return nil
}

// Run polls once immediately, then on the schedule until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.c != nil {
		p.mu.Unlock()
		return nil
	}
	sched, err := ParseSchedule(p.cfg.Schedule)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{p.log})))
	p.entry = c.Schedule(sched, p.job(ctx))
	p.c = c
	p.mu.Unlock()

	c.Start()
	p.log.Info("poller started", logx.String("schedule", p.cfg.Schedule), logx.Time("since", p.cfg.Since))
	_ = p.PollOnce(ctx)

	<-ctx.Done()

	p.mu.Lock()
	p.c = nil
	p.mu.Unlock()
	<-c.Stop().Done()
	p.log.Info("poller stopped")
	return nil
}

// Apply swaps the schedule of a running poller. Since is kept.
func (p *Poller) Apply(ctx context.Context, schedule string, timeout time.Duration) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if schedule == p.cfg.Schedule && (timeout <= 0 || timeout == p.cfg.Timeout) {
		return nil
	}
	p.cfg.Schedule = schedule
	if timeout > 0 {
		p.cfg.Timeout = timeout
	}
	if p.c != nil {
		p.c.Remove(p.entry)
		p.entry = p.c.Schedule(sched, p.job(ctx))
	}
	p.log.Info("poll schedule updated", logx.String("schedule", schedule))
	return nil
}

func (p *Poller) job(ctx context.Context) cron.Job {
	return cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_ = p.PollOnce(ctx)
	})
}

func (p *Poller) Stats() Stats {
	s := Stats{
		Polls:    p.polls.Load(),
		Failures: p.failures.Load(),
		Skipped:  p.skipped.Load(),
		Enqueued: p.enqueued.Load(),
	}
	if ns := p.lastOK.Load(); ns > 0 {
		s.LastOK = time.Unix(0, ns)
	}
	return s
}

func (p *Poller) publish(typ string, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

// cronLogger routes robfig/cron's panic reports into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", kv))
}
