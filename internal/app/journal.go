package app

import (
	"context"
	"time"

	"dealboard/internal/celebration"
	"dealboard/internal/eventbus"
	"dealboard/internal/storage"
	logx "dealboard/pkg/logx"
)

// Journal is the part of storage.Store the event log needs.
type Journal interface {
	AppendPresentation(ctx context.Context, e storage.PresentationEntry) error
}

var journalKinds = map[string]string{
	celebration.EventPresenting:   storage.EventPresented,
	celebration.EventAcknowledged: storage.EventAcknowledged,
	celebration.EventAckFailed:    storage.EventAckFailed,
}

// journalEntry maps a celebration bus event to a journal line.
func journalEntry(e eventbus.Event, clientID string) (storage.PresentationEntry, bool) {
	kind, ok := journalKinds[e.Type]
	if !ok {
		return storage.PresentationEntry{}, false
	}
	ev, ok := e.Data.(celebration.LifecycleEvent)
	if !ok {
		return storage.PresentationEntry{}, false
	}
	entry := storage.PresentationEntry{
		At:       ev.At,
		DealID:   ev.ID.String(),
		Event:    kind,
		ClientID: clientID,
		Error:    ev.Error,
	}
	if entry.At.IsZero() {
		entry.At = e.Time
	}
	if n := ev.Notification; n != nil {
		entry.DealName = n.DealName
		entry.Amount = n.Amount
	}
	return entry, true
}

// runEvents consumes the bus: celebration milestones go to the journal and
// each presentation restarts the mascot.
func (a *App) runEvents(ctx context.Context, events <-chan eventbus.Event) error {
	warn := logx.NewSampler(1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))

			if e.Type == celebration.EventPresenting && a.loop != nil {
				a.loop.Play()
			}
			if a.journal == nil {
				continue
			}
			entry, ok := journalEntry(e, a.clientID)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := a.journal.AppendPresentation(wctx, entry)
			cancel()
			if err != nil {
				warn.Warn(a.log, "journal append failed", logx.String("id", entry.DealID), logx.Err(err))
			}
		}
	}
}
