package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	logx "dealboard/pkg/logx"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"
)

var ErrDisabled = errors.New("audio disabled")

type Config struct {
	Enabled bool
	// Volume in beep's log2 scale: 0 is unchanged, -1 is half, 1 is double.
	Volume float64
}

// Player opens the speaker lazily. When the device cannot be opened the
// failure is reported and initialization is retried on the next Play.
type Player struct {
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	ready   bool
	notes   []Note
	fails   int
	lastErr error

	initFn func(beep.SampleRate, int) error
	playFn func(...beep.Streamer)
}

func NewPlayer(cfg Config, log logx.Logger) *Player {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Player{
		log:    log.With(logx.String("comp", "audio")),
		cfg:    cfg,
		notes:  Fanfare,
		initFn: speaker.Init,
		playFn: speaker.Play,
	}
}

func (p *Player) Apply(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

// Play starts the fanfare and returns without waiting for it to finish.
func (p *Player) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.cfg.Enabled {
		return ErrDisabled
	}
	if !p.ready {
		if err := p.initFn(SampleRate, SampleRate.N(100*time.Millisecond)); err != nil {
			p.fails++
			p.lastErr = err
			return fmt.Errorf("audio device unavailable (attempt %d): %w", p.fails, err)
		}
		p.ready = true
		if p.fails > 0 {
			p.log.Info("audio device recovered", logx.Int("failed_attempts", p.fails))
		}
		p.fails, p.lastErr = 0, nil
	}

	var s beep.Streamer = NewCornet(SampleRate, p.notes, 0)
	if p.cfg.Volume != 0 {
		s = &effects.Volume{Streamer: s, Base: 2, Volume: p.cfg.Volume}
	}
	p.playFn(s)
	return nil
}

// LastError is the most recent device error, nil once the device opened.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close releases the device.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ready {
		speaker.Clear()
		speaker.Close()
	}
	p.ready = false
}
