// Package storage persists the little state a display agent owns.
//
// It currently supports:
//   - A key/value table (panel client id, celebration theme)
//   - A presentation journal (presented / acknowledged / ack failures)
//
// Backends: "file" (jsonl journal + snapshot), "sqlite" (modernc) and
// "postgres" (lib/pq) for panels that share a database.
package storage
