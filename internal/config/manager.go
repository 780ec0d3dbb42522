package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	logx "dealboard/pkg/logx"
)

// Manager owns the live configuration: the committed value, its revision
// and the subscribers that want every accepted change.
type Manager struct {
	path string
	log  logx.Logger

	cur      atomic.Pointer[Config]
	revision atomic.Value // string

	check func(ctx context.Context, cfg *Config) error

	subsMu sync.Mutex
	subs   map[chan *Config]struct{}
}

func NewManager(path string) *Manager {
	m := &Manager{path: path, subs: make(map[chan *Config]struct{})}
	m.revision.Store("")
	return m
}

func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator adds a check that reloads must pass on top of Validate.
// Load does not run it.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) { m.check = fn }

// Load reads, validates and commits the file.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.read()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Get() *Config { return m.cur.Load() }

// Revision identifies the committed content; whitespace and key order
// do not change it.
func (m *Manager) Revision() string { return m.revision.Load().(string) }

// Subscribe returns a channel that receives every committed reload. When the
// buffer is full the oldest pending config is replaced.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(1, buffer))
	m.subsMu.Lock()
	m.subs[ch] = struct{}{}
	m.subsMu.Unlock()
	return ch
}

func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if _, ok := m.subs[ch]; ok {
		delete(m.subs, ch)
		close(ch)
	}
}

func (m *Manager) read() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

func (m *Manager) commit(cfg *Config) {
	m.cur.Store(cfg)
	m.revision.Store(revisionOf(cfg))
}

func revisionOf(cfg *Config) string {
	b, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:6])
}

func (m *Manager) broadcast(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload commits the file if it parses, passes both checks and differs
// from the committed revision.
func (m *Manager) reload(ctx context.Context) {
	log := m.log.With(logx.String("path", m.path))
	cfg, err := m.read()
	if err != nil {
		log.Warn("config unreadable, keeping the running one", logx.Err(err))
		return
	}
	rev := revisionOf(cfg)
	if rev != "" && rev == m.Revision() {
		log.Debug("config file touched without changes")
		return
	}
	if err = Validate(cfg); err == nil && m.check != nil {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = m.check(cctx, cfg)
		cancel()
	}
	if err != nil {
		log.Warn("config rejected, keeping the running one", logx.Err(err))
		return
	}
	m.commit(cfg)
	m.broadcast(cfg)
	log.Info("config reloaded", logx.String("revision", rev))
}
