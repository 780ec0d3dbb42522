// Package clientid gives each panel a stable identifier so the backend can
// track which notifications it has already shown.
package clientid

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Key is the storage key holding the identifier.
const Key = "panel_client_id"

type KV interface {
	GetKV(ctx context.Context, key string) (string, bool, error)
	PutKV(ctx context.Context, key, value string) error
}

// New returns a fresh "panel-<uuid>" identifier.
func New() string { return "panel-" + uuid.NewString() }

// Resolve picks the panel identifier: an explicit override wins, then a
// previously stored value, otherwise a new one is generated and stored.
// With a nil kv the identifier lives only for this process.
func Resolve(ctx context.Context, kv KV, override string) (id string, created bool, err error) {
	if v := strings.TrimSpace(override); v != "" {
		return v, false, nil
	}
	if kv == nil {
		return New(), true, nil
	}
	v, ok, err := kv.GetKV(ctx, Key)
	if err != nil {
		return "", false, fmt.Errorf("clientid: load: %w", err)
	}
	if ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v), false, nil
	}
	id = New()
	if err := kv.PutKV(ctx, Key, id); err != nil {
		return "", false, fmt.Errorf("clientid: store: %w", err)
	}
	return id, true, nil
}

// Valid reports whether s looks like an identifier produced by New.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, "panel-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
