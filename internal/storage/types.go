package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": jsonl journal + kv snapshot next to Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": database at DSN
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Journal event kinds.
const (
	EventPresented    = "presented"
	EventAcknowledged = "acknowledged"
	EventAckFailed    = "ack_failed"
)

// PresentationEntry is one line of the presentation journal.
type PresentationEntry struct {
	At       time.Time `json:"at"`
	DealID   string    `json:"deal_id"`
	Event    string    `json:"event"`
	DealName string    `json:"deal_name,omitempty"`
	Amount   float64   `json:"amount,omitempty"`
	ClientID string    `json:"client_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}
