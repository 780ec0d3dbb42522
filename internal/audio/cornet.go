// Package audio plays the celebration fanfare through the system speaker.
package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

const SampleRate = beep.SampleRate(44100)

// Note is one step of a fanfare. Freq 0 is a rest.
type Note struct {
	Freq float64
	Dur  time.Duration
}

// Fanfare is the default "contract signed" call: a rising major arpeggio
// ending on a held top note.
var Fanfare = []Note{
	{392.00, 140 * time.Millisecond}, // G4
	{523.25, 140 * time.Millisecond}, // C5
	{659.25, 140 * time.Millisecond}, // E5
	{783.99, 260 * time.Millisecond}, // G5
	{0, 60 * time.Millisecond},
	{659.25, 120 * time.Millisecond},
	{783.99, 700 * time.Millisecond},
}

// Cornet synthesizes a brass-like tone sequence. It ends after the last note.
type Cornet struct {
	sr    beep.SampleRate
	notes []Note
	gain  float64

	note int // index into notes
	pos  int // sample within note
	abs  int // sample since start, for phase continuity
}

func NewCornet(sr beep.SampleRate, notes []Note, gain float64) *Cornet {
	if gain <= 0 || gain > 1 {
		gain = 0.35
	}
	return &Cornet{sr: sr, notes: notes, gain: gain}
}

// Len is the total length in samples.
func (c *Cornet) Len() int {
	n := 0
	for _, nt := range c.notes {
		n += c.sr.N(nt.Dur)
	}
	return n
}

func (c *Cornet) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		if c.note >= len(c.notes) {
			break
		}
		nt := c.notes[c.note]
		length := c.sr.N(nt.Dur)
		if c.pos >= length {
			c.note++
			c.pos = 0
			continue
		}
		v := c.gain * envelope(c.pos, length, c.sr) * brass(nt.Freq, float64(c.abs)/float64(c.sr))
		samples[n][0] = v
		samples[n][1] = v
		n++
		c.pos++
		c.abs++
	}
	return n, n > 0
}

func (c *Cornet) Err() error { return nil }

// brass mixes odd and even harmonics with falling weights.
func brass(freq, t float64) float64 {
	if freq <= 0 {
		return 0
	}
	w := 2 * math.Pi * freq * t
	return 0.6*math.Sin(w) + 0.25*math.Sin(2*w) + 0.1*math.Sin(3*w) + 0.05*math.Sin(4*w)
}

// envelope is a short attack, slight sustain droop and release.
func envelope(pos, length int, sr beep.SampleRate) float64 {
	attack := sr.N(15 * time.Millisecond)
	release := sr.N(40 * time.Millisecond)
	switch {
	case pos < attack:
		return float64(pos) / float64(attack)
	case pos > length-release:
		return math.Max(0, float64(length-pos)/float64(release))
	default:
		return 1 - 0.15*float64(pos)/float64(length)
	}
}
