package config

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	logx "dealboard/pkg/logx"

	"github.com/fsnotify/fsnotify"
)

const (
	settleDelay   = 250 * time.Millisecond
	watchRetryMin = 500 * time.Millisecond
	watchRetryMax = 30 * time.Second
)

var errWatcherClosed = errors.New("config: watcher closed")

// Watch reloads the file after it settles from a burst of edits. The
// parent directory is watched so editors that replace the file by rename
// are seen. A failed watcher is rebuilt with growing delays.
func (m *Manager) Watch(ctx context.Context) error {
	retry := watchRetryMin
	for {
		err := m.watchOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher lost", logx.Err(err), logx.Duration("retry_in", retry))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
		retry = min(retry*2, watchRetryMax)
	}
}

func (m *Manager) watchOnce(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}
	name := filepath.Clean(m.path)

	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Clean(ev.Name) != name || ev.Op == fsnotify.Chmod {
				continue
			}
			settle.Reset(settleDelay)
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config events overflowed, rereading")
				settle.Reset(settleDelay)
				continue
			}
			return err
		}
	}
}
