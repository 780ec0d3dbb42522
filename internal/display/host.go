package display

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dealboard/internal/celebration"
	"dealboard/internal/overlay"
	logx "dealboard/pkg/logx"
)

// Host is one place a celebration is shown. Calls must return quickly.
type Host interface {
	Show(ctx context.Context, o overlay.Overlay) error
	Hide(ctx context.Context, id celebration.ID) error
	Remove(ctx context.Context, id celebration.ID) error
}

type MultiHost []Host

func (m MultiHost) Show(ctx context.Context, o overlay.Overlay) error {
	var errs []error
	for _, h := range m {
		if err := h.Show(ctx, o); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

func (m MultiHost) Hide(ctx context.Context, id celebration.ID) error {
	var errs []error
	for _, h := range m {
		if err := h.Hide(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

func (m MultiHost) Remove(ctx context.Context, id celebration.ID) error {
	var errs []error
	for _, h := range m {
		if err := h.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

const overlayKeep = 32

// Presenter turns notifications into overlays and shows them on the hosts.
// It keeps the most recent overlays for the card endpoint.
type Presenter struct {
	builder *overlay.Builder
	hosts   Host
	log     logx.Logger

	mu     sync.Mutex
	recent []overlay.Overlay
}

func NewPresenter(builder *overlay.Builder, hosts Host, log logx.Logger) *Presenter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Presenter{builder: builder, hosts: hosts, log: log.With(logx.String("comp", "display"))}
}

func (p *Presenter) Show(ctx context.Context, n celebration.Notification) error {
	o := p.builder.Build(ctx, n)
	p.mu.Lock()
	p.recent = append(p.recent, o)
	if len(p.recent) > overlayKeep {
		p.recent = p.recent[len(p.recent)-overlayKeep:]
	}
	p.mu.Unlock()
	return p.hosts.Show(ctx, o)
}

func (p *Presenter) Hide(ctx context.Context, n celebration.Notification) {
	if err := p.hosts.Hide(ctx, n.ID); err != nil {
		p.log.Warn("overlay hide failed", logx.String("id", n.ID.String()), logx.Err(err))
	}
}

func (p *Presenter) Remove(ctx context.Context, n celebration.Notification) {
	if err := p.hosts.Remove(ctx, n.ID); err != nil {
		p.log.Warn("overlay remove failed", logx.String("id", n.ID.String()), logx.Err(err))
	}
}

// Overlay returns the overlay last shown for id.
func (p *Presenter) Overlay(id celebration.ID) (overlay.Overlay, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.recent) - 1; i >= 0; i-- {
		if p.recent[i].ID == id {
			return p.recent[i], true
		}
	}
	return overlay.Overlay{}, false
}

// Builder exposes the overlay builder so callers can render queued items.
func (p *Presenter) Builder() *overlay.Builder { return p.builder }
