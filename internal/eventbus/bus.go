package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event is an in-process signal such as a celebration milestone or a
// display connecting. Types are dotted: "celebration.presenting".
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// MemBus fans events out to buffered subscriber channels. Publish never
// waits: a full subscriber misses the event and Dropped counts it.
type MemBus struct {
	mu      sync.Mutex
	subs    atomic.Pointer[[]*subscriber]
	dropped atomic.Uint64
}

type subscriber struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func New() *MemBus {
	b := &MemBus{}
	b.subs.Store(&[]*subscriber{})
	return b
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	for _, s := range *b.subs.Load() {
		if !s.offer(e) {
			b.dropped.Add(1)
		}
	}
}

// offer reports false only when the event was lost to a full buffer.
func (s *subscriber) offer(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

// Subscribe registers a channel with the given buffer (8 when <= 0). The
// returned func unsubscribes and closes the channel; it is idempotent.
func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	b.update(func(cur []*subscriber) []*subscriber { return append(cur, s) })

	return s.ch, func() {
		b.update(func(cur []*subscriber) []*subscriber {
			out := make([]*subscriber, 0, len(cur))
			for _, o := range cur {
				if o != s {
					out = append(out, o)
				}
			}
			return out
		})
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		s.mu.Unlock()
	}
}

// update replaces the subscriber list copy-on-write.
func (b *MemBus) update(fn func([]*subscriber) []*subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.subs.Load()
	next := fn(append([]*subscriber(nil), cur...))
	b.subs.Store(&next)
}

func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// HasPrefix reports whether e is in the namespace ns, e.g. "celebration".
func HasPrefix(e Event, ns string) bool {
	return e.Type == ns || strings.HasPrefix(e.Type, ns+".")
}
