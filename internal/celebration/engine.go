package celebration

import (
	"context"
	"sync"
	"time"

	"dealboard/internal/eventbus"
	logx "dealboard/pkg/logx"
)

const (
	DefaultAnimationDuration = 30 * time.Second
	DefaultFadeOut           = 500 * time.Millisecond

	recentKeep = 64
)

// Presenter puts a celebration on screen. Show starts it, Hide starts the
// fade-out and Remove takes it down.
type Presenter interface {
	Show(ctx context.Context, n Notification) error
	Hide(ctx context.Context, n Notification)
	Remove(ctx context.Context, n Notification)
}

// Sound plays the celebration fanfare. It must not block for the length of the sound.
type Sound interface {
	Play(ctx context.Context) error
}

// Acknowledger receives finished real notifications. It must not block.
type Acknowledger interface {
	Acknowledge(n Notification)
}

type Options struct {
	AnimationDuration time.Duration
	FadeOut           time.Duration

	Presenter Presenter
	Sound     Sound
	Acker     Acknowledger
	Clock     Clock
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Engine serializes notifications into one-at-a-time celebrations.
//
// Every id is presented at most once per process. Enqueue is safe from any
// goroutine; the presentation timeline runs on Clock callbacks.
type Engine struct {
	mu sync.Mutex

	anim time.Duration
	fade time.Duration

	queue     []Notification
	queued    map[ID]struct{}
	processed map[ID]struct{}
	done      map[ID]struct{}

	active      *Notification
	activeSince time.Time

	recent []Notification

	presenter Presenter
	sound     Sound
	acker     Acknowledger
	clock     Clock
	bus       eventbus.Bus
	log       logx.Logger

	ctx    context.Context
	cancel context.CancelFunc
	timer  Timer
}

func NewEngine(opts Options) *Engine {
	if opts.AnimationDuration <= 0 {
		opts.AnimationDuration = DefaultAnimationDuration
	}
	if opts.FadeOut <= 0 {
		opts.FadeOut = DefaultFadeOut
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		anim:      opts.AnimationDuration,
		fade:      opts.FadeOut,
		queued:    map[ID]struct{}{},
		processed: map[ID]struct{}{},
		done:      map[ID]struct{}{},
		presenter: opts.Presenter,
		sound:     opts.Sound,
		acker:     opts.Acker,
		clock:     opts.Clock,
		bus:       opts.Bus,
		log:       opts.Log.With(logx.String("comp", "celebration")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetDurations changes the timeline for presentations that start later.
func (e *Engine) SetDurations(anim, fade time.Duration) {
	e.mu.Lock()
	if anim > 0 {
		e.anim = anim
	}
	if fade > 0 {
		e.fade = fade
	}
	e.mu.Unlock()
}

// Enqueue admits n unless its id was already presented or is already
// waiting. It returns whether n was admitted.
func (e *Engine) Enqueue(n Notification) bool {
	if n.ID == "" {
		e.log.Warn("notification without id ignored", logx.String("deal", n.DealName))
		return false
	}

	e.mu.Lock()
	_, seen := e.processed[n.ID]
	_, waiting := e.queued[n.ID]
	if seen || waiting {
		e.mu.Unlock()
		e.publish(EventDuplicate, n, "")
		return false
	}
	e.queue = append(e.queue, n)
	e.queued[n.ID] = struct{}{}
	depth := len(e.queue)
	e.mu.Unlock()

	e.log.Debug("notification queued", logx.String("id", n.ID.String()), logx.Int("depth", depth))
	e.publish(EventQueued, n, "")
	e.drain()
	return true
}

// drain starts the next presentation when nothing is on screen.
func (e *Engine) drain() {
	e.mu.Lock()
	if e.active != nil || e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	var next *Notification
	for len(e.queue) > 0 {
		n := e.queue[0]
		e.queue = e.queue[1:]
		delete(e.queued, n.ID)
		if _, seen := e.processed[n.ID]; seen {
			continue
		}
		next = &n
		break
	}
	if next == nil {
		e.mu.Unlock()
		return
	}
	e.processed[next.ID] = struct{}{}
	e.active = next
	e.activeSince = e.clock.Now()
	e.remember(*next)
	anim := e.anim
	e.mu.Unlock()

	e.present(*next, anim)
}

func (e *Engine) present(n Notification, anim time.Duration) {
	log := e.log.With(logx.String("id", n.ID.String()))
	log.Info("celebration started", logx.String("deal", n.DealName), logx.Float64("amount", n.Amount))
	e.publish(EventPresenting, n, "")

	if e.presenter != nil {
		if err := e.presenter.Show(e.ctx, n); err != nil {
			log.Warn("overlay show failed", logx.Err(err))
		}
	}
	if e.sound != nil {
		if err := e.sound.Play(e.ctx); err != nil {
			log.Warn("celebration sound blocked", logx.Err(err))
		}
	}

	e.schedule(anim, func() { e.hide(n) })
}

func (e *Engine) schedule(d time.Duration, f func()) {
	t := e.clock.AfterFunc(d, f)
	e.mu.Lock()
	e.timer = t
	e.mu.Unlock()
}

func (e *Engine) hide(n Notification) {
	if e.presenter != nil {
		e.presenter.Hide(e.ctx, n)
	}
	e.publish(EventHidden, n, "")

	e.mu.Lock()
	fade := e.fade
	e.mu.Unlock()
	e.schedule(fade, func() { e.finish(n) })
}

func (e *Engine) finish(n Notification) {
	if e.presenter != nil {
		e.presenter.Remove(e.ctx, n)
	}
	e.publish(EventRemoved, n, "")

	if n.ID.IsReal() {
		if e.acker != nil {
			e.acker.Acknowledge(n)
		}
	} else {
		e.publish(EventAckSkipped, n, "")
	}

	e.mu.Lock()
	e.done[n.ID] = struct{}{}
	e.active = nil
	e.timer = nil
	e.mu.Unlock()

	e.drain()
}

func (e *Engine) remember(n Notification) {
	e.recent = append(e.recent, n)
	if len(e.recent) > recentKeep {
		e.recent = e.recent[len(e.recent)-recentKeep:]
	}
}

func (e *Engine) publish(typ string, n Notification, errStr string) {
	if e.bus == nil {
		return
	}
	now := e.clock.Now()
	nn := n
	e.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: LifecycleEvent{ID: n.ID, Notification: &nn, At: now, Error: errStr}})
}

// Active reports whether a celebration is on screen. Slide rotation pauses
// while it is true.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// State returns where id is in its lifecycle.
func (e *Engine) State(id ID) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.active != nil && e.active.ID == id:
		return StatePresenting
	case hasID(e.done, id):
		return StateAcknowledged
	case hasID(e.queued, id):
		return StateQueued
	default:
		return StateUnseen
	}
}

func hasID(m map[ID]struct{}, id ID) bool {
	_, ok := m[id]
	return ok
}

// Find returns a notification that is queued, on screen or recently presented.
func (e *Engine) Find(id ID) (Notification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active.ID == id {
		return *e.active, true
	}
	for _, n := range e.queue {
		if n.ID == id {
			return n, true
		}
	}
	for i := len(e.recent) - 1; i >= 0; i-- {
		if e.recent[i].ID == id {
			return e.recent[i], true
		}
	}
	return Notification{}, false
}

type Snapshot struct {
	Active      ID        `json:"active,omitempty"`
	ActiveSince time.Time `json:"active_since,omitempty"`
	Pending     []ID      `json:"pending"`
	Processed   int       `json:"processed"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{Pending: make([]ID, 0, len(e.queue)), Processed: len(e.processed)}
	for _, n := range e.queue {
		s.Pending = append(s.Pending, n.ID)
	}
	if e.active != nil {
		s.Active = e.active.ID
		s.ActiveSince = e.activeSince
	}
	return s
}

// Close stops starting new presentations and cancels the pending timer.
// A celebration on screen is left as is.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	t := e.timer
	e.timer = nil
	e.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}
