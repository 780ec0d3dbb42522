package logx

import (
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sampler caps a noisy warning to a few lines per second. The next line
// that gets through carries the number of lines dropped before it.
type Sampler struct {
	lim     *rate.Limiter
	dropped atomic.Uint64
}

func NewSampler(perSec int) *Sampler {
	if perSec < 1 {
		perSec = 1
	}
	return &Sampler{lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// Warn logs through l unless this second's allowance is used up.
// A nil Sampler never drops.
func (s *Sampler) Warn(l Logger, msg string, fields ...Field) {
	if s != nil {
		if !s.lim.Allow() {
			s.dropped.Add(1)
			return
		}
		if n := s.dropped.Swap(0); n > 0 {
			fields = append(fields, func(e *zerolog.Event) { e.Uint64("suppressed", n) })
		}
	}
	l.Warn(msg, fields...)
}
