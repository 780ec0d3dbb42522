package storage

import (
	"context"
	"fmt"
	"strings"

	logx "dealboard/pkg/logx"
)

// Store keeps the runtime key/value pairs (theme, client id) and the
// presentation journal.
type Store interface {
	GetKV(ctx context.Context, key string) (value string, ok bool, err error)
	PutKV(ctx context.Context, key, value string) error
	AppendPresentation(ctx context.Context, e PresentationEntry) error
	// RecentPresentations returns up to limit entries, newest first.
	RecentPresentations(ctx context.Context, limit int) ([]PresentationEntry, error)
	Close() error
}

type opener func(Config, logx.Logger) (Store, error)

var drivers = map[string]opener{
	"file":       openFile,
	"sqlite":     openSQLite,
	"sqlite3":    openSQLite,
	"postgres":   openPostgres,
	"postgresql": openPostgres,
}

// Open returns the store for cfg.Driver, or nil when the driver is empty
// or "none".
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("comp", "storage"), logx.String("driver", name)))
}
