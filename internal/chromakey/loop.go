package chromakey

import (
	"context"
	"sync/atomic"
	"time"

	logx "dealboard/pkg/logx"
)

// LoopOptions configures a Loop. Zero values take defaults.
type LoopOptions struct {
	TickRate    int           // redraws per second, default 60
	ReplayDelay time.Duration // pause before replaying an ended source; 0 stops until Play
	AutoPlay    bool          // start playing as soon as Run starts
	Log         logx.Logger
}

// Loop redraws a Source through Composite once per tick while playing.
// Run owns all playback state; Play may be called from any goroutine.
type Loop struct {
	src     Source
	painter Painter
	profile atomic.Pointer[Profile]

	tick        time.Duration
	replayDelay time.Duration
	autoPlay    bool
	log         logx.Logger
	warn        *logx.Sampler

	playCh chan struct{}

	playing atomic.Bool
	frames  atomic.Uint64
	skipped atomic.Uint64
	plays   atomic.Uint64
}

type LoopStats struct {
	Playing bool   `json:"playing"`
	Frames  uint64 `json:"frames"`
	Skipped uint64 `json:"skipped"`
	Plays   uint64 `json:"plays"`
	Profile string `json:"profile"`
}

func NewLoop(src Source, painter Painter, p *Profile, opts LoopOptions) *Loop {
	rate := opts.TickRate
	if rate <= 0 {
		rate = 60
	}
	l := &Loop{
		src:         src,
		painter:     painter,
		tick:        time.Second / time.Duration(rate),
		replayDelay: opts.ReplayDelay,
		autoPlay:    opts.AutoPlay,
		log:         opts.Log,
		warn:        logx.NewSampler(1),
		playCh:      make(chan struct{}, 1),
	}
	l.profile.Store(p)
	return l
}

// Play (re)starts playback from the first frame.
func (l *Loop) Play() {
	select {
	case l.playCh <- struct{}{}:
	default:
	}
}

// SetProfile swaps the profile used from the next tick on.
func (l *Loop) SetProfile(p *Profile) {
	if p != nil {
		l.profile.Store(p)
	}
}

func (l *Loop) Stats() LoopStats {
	st := LoopStats{
		Playing: l.playing.Load(),
		Frames:  l.frames.Load(),
		Skipped: l.skipped.Load(),
		Plays:   l.plays.Load(),
	}
	if p := l.profile.Load(); p != nil {
		st.Profile = p.Name
	}
	return st
}

type tickResult int

const (
	tickPainted tickResult = iota
	tickSkipped
	tickEnded
)

// step runs one redraw.
func (l *Loop) step() tickResult {
	if l.src.Ended() {
		return tickEnded
	}
	w, h := l.src.Size()
	if !l.src.Ready() || w <= 0 || h <= 0 {
		l.skipped.Add(1)
		return tickSkipped
	}
	buf := NewBuffer(w, h)
	if err := l.src.ReadFrame(buf.Pix); err != nil {
		l.skipped.Add(1)
		l.warn.Warn(l.log, "mascot frame read failed", logx.Err(err))
		return tickSkipped
	}
	Composite(buf, l.profile.Load())
	l.painter.Paint(buf)
	l.frames.Add(1)
	return tickPainted
}

// Run drives playback until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	if l.autoPlay {
		l.Play()
	}
	var replay *time.Timer
	defer func() {
		if replay != nil {
			replay.Stop()
		}
	}()

	for {
		var replayC <-chan time.Time
		if replay != nil {
			replayC = replay.C
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.playCh:
		case <-replayC:
		}
		if replay != nil {
			replay.Stop()
			replay = nil
		}

		if err := l.play(ctx); err != nil {
			return nil
		}
		if l.replayDelay > 0 {
			l.log.Debug("mascot ended; scheduling replay", logx.Duration("delay", l.replayDelay))
			replay = time.NewTimer(l.replayDelay)
		}
	}
}

// play ticks until the source ends. It returns ctx.Err() on cancellation.
func (l *Loop) play(ctx context.Context) error {
	l.src.Rewind()
	l.plays.Add(1)
	l.playing.Store(true)
	defer l.playing.Store(false)

	t := time.NewTicker(l.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.playCh:
			l.src.Rewind()
			l.plays.Add(1)
		case <-t.C:
			if l.step() == tickEnded {
				return nil
			}
		}
	}
}
