package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "dealboard/pkg/logx"
)

// fileStore keeps everything in plain files next to cfg.Path:
//   - <prefix>.presentations.jsonl (append-only)
//   - <prefix>.kv.snapshot.json    (compacted kv)
//   - <prefix>.kv.journal.jsonl    (kv writes since the last snapshot)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	presPath string
	presFile *os.File

	kvSnapshotPath string
	kvJournal      *os.File
	kv             map[string]string
	kvWrites       int
}

type kvRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const kvCompactEvery = 200

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	presPath := prefix + ".presentations.jsonl"
	pf, err := os.OpenFile(presPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	snapPath := prefix + ".kv.snapshot.json"
	journalPath := prefix + ".kv.journal.jsonl"
	kv := map[string]string{}
	if err := loadKVSnapshot(snapPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv snapshot unreadable", logx.Err(err))
	}
	if err := replayKVJournal(journalPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv journal unreadable", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = pf.Close()
		return nil, err
	}

	return &fileStore{
		log:            log,
		presPath:       presPath,
		presFile:       pf,
		kvSnapshotPath: snapPath,
		kvJournal:      jf,
		kv:             kv,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.presFile != nil {
		errs = append(errs, s.presFile.Close())
		s.presFile = nil
	}
	if s.kvJournal != nil {
		errs = append(errs, s.kvJournal.Close())
		s.kvJournal = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) GetKV(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *fileStore) PutKV(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kvJournal == nil {
		return ErrClosed
	}
	s.kv[key] = value
	if err := json.NewEncoder(s.kvJournal).Encode(kvRecord{Key: key, Value: value}); err != nil {
		return err
	}
	s.kvWrites++
	if s.kvWrites%kvCompactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("kv compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) AppendPresentation(_ context.Context, e PresentationEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.presFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.presFile).Encode(e)
}

func (s *fileStore) RecentPresentations(_ context.Context, limit int) ([]PresentationEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.presPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Keep a ring of the last `limit` entries.
	ring := make([]PresentationEntry, 0, limit)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e PresentationEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if len(ring) == limit {
			copy(ring, ring[1:])
			ring = ring[:limit-1]
		}
		ring = append(ring, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(ring, func(i, j int) bool { return ring[i].At.After(ring[j].At) })
	return ring, nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.kvSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.kv); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.kvSnapshotPath); err != nil {
		return err
	}
	if err := s.kvJournal.Truncate(0); err != nil {
		return err
	}
	_, err = s.kvJournal.Seek(0, io.SeekEnd)
	return err
}

func loadKVSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayKVJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r kvRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r.Value
	}
	return sc.Err()
}
