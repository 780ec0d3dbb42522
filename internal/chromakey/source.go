package chromakey

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "image/png"
)

var ErrNotReady = errors.New("source not ready")

// Source is a frame producer the Loop polls once per tick.
type Source interface {
	// Ready is false until the first frame is decodable.
	Ready() bool
	Size() (w, h int)
	// ReadFrame copies the current frame into dst (w*h*4 bytes).
	ReadFrame(dst []byte) error
	// Ended is true once playback passed the last frame.
	Ended() bool
	// Rewind restarts playback from the first frame.
	Rewind()
}

// ImageSource plays a single still once.
type ImageSource struct {
	mu   sync.Mutex
	img  *image.NRGBA
	read bool
}

func NewImageSource(img image.Image) *ImageSource {
	return &ImageSource{img: toNRGBA(img)}
}

// LoadImageSource decodes a PNG or JPEG file.
func LoadImageSource(path string) (*ImageSource, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return NewImageSource(img), nil
}

func (s *ImageSource) Ready() bool { return s.img != nil && !s.img.Rect.Empty() }

func (s *ImageSource) Size() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	return s.img.Rect.Dx(), s.img.Rect.Dy()
}

func (s *ImageSource) ReadFrame(dst []byte) error {
	if !s.Ready() {
		return ErrNotReady
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(dst, FromNRGBA(s.img).Pix)
	s.read = true
	return nil
}

func (s *ImageSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read
}

func (s *ImageSource) Rewind() {
	s.mu.Lock()
	s.read = false
	s.mu.Unlock()
}

// SequenceSource plays decoded frames at a fixed rate, like a video element.
// The current frame follows wall time since the last Rewind.
type SequenceSource struct {
	frames   []*image.NRGBA
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	started time.Time
}

func NewSequenceSource(frames []image.Image, fps int) *SequenceSource {
	if fps <= 0 {
		fps = 30
	}
	s := &SequenceSource{interval: time.Second / time.Duration(fps), now: time.Now}
	for _, f := range frames {
		s.frames = append(s.frames, toNRGBA(f))
	}
	s.started = s.now()
	return s
}

// LoadSequence reads every .png file in dir, in name order.
func LoadSequence(dir string, fps int) (*SequenceSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no png frames", dir)
	}

	frames := make([]image.Image, 0, len(names))
	for _, n := range names {
		img, err := decodeFile(filepath.Join(dir, n))
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return NewSequenceSource(frames, fps), nil
}

func (s *SequenceSource) index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.now().Sub(s.started) / s.interval)
}

func (s *SequenceSource) Ready() bool {
	return len(s.frames) > 0 && !s.frames[0].Rect.Empty()
}

func (s *SequenceSource) Size() (int, int) {
	if len(s.frames) == 0 {
		return 0, 0
	}
	return s.frames[0].Rect.Dx(), s.frames[0].Rect.Dy()
}

func (s *SequenceSource) ReadFrame(dst []byte) error {
	if !s.Ready() {
		return ErrNotReady
	}
	i := min(s.index(), len(s.frames)-1)
	f := s.frames[i]
	w, h := s.Size()
	if f.Rect.Dx() != w || f.Rect.Dy() != h {
		return fmt.Errorf("frame %d is %dx%d, want %dx%d", i, f.Rect.Dx(), f.Rect.Dy(), w, h)
	}
	copy(dst, FromNRGBA(f).Pix)
	return nil
}

func (s *SequenceSource) Ended() bool { return s.index() >= len(s.frames) }

func (s *SequenceSource) Rewind() {
	s.mu.Lock()
	s.started = s.now()
	s.mu.Unlock()
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func toNRGBA(src image.Image) *image.NRGBA {
	if src == nil {
		return nil
	}
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	r := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}
