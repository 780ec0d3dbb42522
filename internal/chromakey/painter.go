package chromakey

import (
	"image"
	"sync"
	"sync/atomic"
)

// Painter receives composited frames. The buffer belongs to the painter
// after the call.
type Painter interface {
	Paint(frame *Buffer)
}

// PainterFunc adapts a function to Painter.
type PainterFunc func(frame *Buffer)

func (f PainterFunc) Paint(frame *Buffer) { f(frame) }

// LatestFrame is a one-slot mailbox: each Paint overwrites the previous
// frame. Readers always see the newest frame; frames overwritten before
// anyone read them are counted as dropped.
type LatestFrame struct {
	mu    sync.Mutex
	frame *image.NRGBA
	seq   uint64
	read  bool

	pngSeq uint64
	png    []byte

	dropped atomic.Uint64
}

func (l *LatestFrame) Paint(frame *Buffer) {
	if !frame.Ready() {
		return
	}
	img := frame.NRGBA()
	l.mu.Lock()
	if l.frame != nil && !l.read {
		l.dropped.Add(1)
	}
	l.frame = img
	l.seq++
	l.read = false
	l.mu.Unlock()
}

// Latest returns the newest frame and its sequence number.
func (l *LatestFrame) Latest() (*image.NRGBA, uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frame == nil {
		return nil, 0, false
	}
	l.read = true
	return l.frame, l.seq, true
}

// PNG encodes the newest frame, reusing the last encoding when nothing changed.
func (l *LatestFrame) PNG() ([]byte, bool, error) {
	img, seq, ok := l.Latest()
	if !ok {
		return nil, false, nil
	}
	l.mu.Lock()
	if l.pngSeq == seq && l.png != nil {
		b := l.png
		l.mu.Unlock()
		return b, true, nil
	}
	l.mu.Unlock()

	b, err := EncodePNG(img)
	if err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	if seq >= l.pngSeq {
		l.pngSeq, l.png = seq, b
	}
	l.mu.Unlock()
	return b, true, nil
}

func (l *LatestFrame) Dropped() uint64 { return l.dropped.Load() }
