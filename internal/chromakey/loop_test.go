package chromakey

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu     sync.Mutex
	ready  bool
	w, h   int
	reads  int
	ended  bool
	rewind int
}

func (f *fakeSource) Ready() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.ready }
func (f *fakeSource) Size() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.w, f.h
}
func (f *fakeSource) ReadFrame(dst []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	for i := 0; i < len(dst); i += 4 {
		dst[i+1], dst[i+3] = 255, 255
	}
	return nil
}
func (f *fakeSource) Ended() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.ended }
func (f *fakeSource) Rewind()     { f.mu.Lock(); f.rewind++; f.ended = false; f.mu.Unlock() }

func TestStepSkipsWhenNotReady(t *testing.T) {
	t.Parallel()
	src := &fakeSource{ready: false, w: 2, h: 2}
	var painted int
	l := NewLoop(src, PainterFunc(func(*Buffer) { painted++ }), Green(), LoopOptions{})

	if r := l.step(); r != tickSkipped {
		t.Fatalf("result=%v", r)
	}
	src.ready, src.w = true, 0
	if r := l.step(); r != tickSkipped {
		t.Fatalf("zero width: result=%v", r)
	}
	if painted != 0 || src.reads != 0 {
		t.Fatalf("painted=%d reads=%d", painted, src.reads)
	}

	src.w = 2
	if r := l.step(); r != tickPainted || painted != 1 {
		t.Fatalf("result=%v painted=%d", r, painted)
	}
	if st := l.Stats(); st.Skipped != 2 || st.Frames != 1 {
		t.Fatalf("stats=%+v", st)
	}

	src.ended = true
	if r := l.step(); r != tickEnded {
		t.Fatalf("result=%v", r)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestLoopImageSourcePaintsOnceAndReplaysOnPlay(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+1], img.Pix[i+3] = 255, 255
	}
	var latest LatestFrame
	l := NewLoop(NewImageSource(img), &latest, Green(), LoopOptions{TickRate: 500, AutoPlay: true})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool { st := l.Stats(); return st.Frames == 1 && !st.Playing })
	frame, seq, ok := latest.Latest()
	if !ok || seq != 1 || frame.Pix[3] != 0 {
		t.Fatalf("frame ok=%v seq=%d", ok, seq)
	}

	l.Play()
	waitFor(t, func() bool { st := l.Stats(); return st.Frames == 2 && st.Plays == 2 && !st.Playing })
}

func TestLoopReplaysAfterDelay(t *testing.T) {
	t.Parallel()
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	l := NewLoop(NewImageSource(img), PainterFunc(func(*Buffer) {}), GreenFast(),
		LoopOptions{TickRate: 500, AutoPlay: true, ReplayDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()
	defer func() { cancel(); <-done }()

	waitFor(t, func() bool { return l.Stats().Plays >= 3 })
}

func TestSequenceSourceFollowsClock(t *testing.T) {
	t.Parallel()
	frames := []image.Image{
		image.NewNRGBA(image.Rect(0, 0, 1, 1)),
		image.NewNRGBA(image.Rect(0, 0, 1, 1)),
	}
	frames[1].(*image.NRGBA).SetNRGBA(0, 0, color.NRGBA{R: 9, A: 255})

	now := time.Unix(0, 0)
	s := NewSequenceSource(frames, 10)
	s.now = func() time.Time { return now }
	s.Rewind()

	dst := make([]byte, 4)
	if err := s.ReadFrame(dst); err != nil || dst[0] != 0 {
		t.Fatalf("frame 0: %v %v", dst, err)
	}
	now = now.Add(150 * time.Millisecond)
	if err := s.ReadFrame(dst); err != nil || dst[0] != 9 {
		t.Fatalf("frame 1: %v %v", dst, err)
	}
	if s.Ended() {
		t.Fatal("ended too early")
	}
	now = now.Add(100 * time.Millisecond)
	if !s.Ended() {
		t.Fatal("should have ended")
	}
	s.Rewind()
	if s.Ended() {
		t.Fatal("rewind did not restart")
	}
}

func TestLoadSequenceSortsByName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for i, name := range []string{"002.png", "001.png"} {
		img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		img.SetNRGBA(0, 0, color.NRGBA{R: uint8(i + 1), A: 255})
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, img); err != nil {
			t.Fatal(err)
		}
		_ = f.Close()
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)

	s, err := LoadSequence(dir, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.frames) != 2 || s.frames[0].Pix[0] != 2 {
		t.Fatalf("frames=%d first=%d", len(s.frames), s.frames[0].Pix[0])
	}

	if _, err := LoadSequence(t.TempDir(), 30); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLatestFrameOverwrites(t *testing.T) {
	t.Parallel()
	var l LatestFrame
	if _, ok, err := l.PNG(); ok || err != nil {
		t.Fatal("expected no frame")
	}
	l.Paint(NewBuffer(1, 1))
	l.Paint(NewBuffer(2, 2))
	if l.Dropped() != 1 {
		t.Fatalf("dropped=%d", l.Dropped())
	}
	img, seq, ok := l.Latest()
	if !ok || seq != 2 || img.Rect.Dx() != 2 {
		t.Fatalf("latest seq=%d", seq)
	}
	a, ok, err := l.PNG()
	if !ok || err != nil {
		t.Fatal(err)
	}
	b, _, _ := l.PNG()
	if &a[0] != &b[0] {
		t.Fatal("expected cached encoding")
	}
	l.Paint(NewBuffer(1, 1))
	if l.Dropped() != 1 {
		t.Fatal("read frame should not count as dropped")
	}
}
