package chromakey

import (
	"image"
	"image/draw"
)

// Buffer is a dense row-major RGBA frame, 4 bytes per pixel, non-premultiplied.
type Buffer struct {
	Pix    []byte
	Width  int
	Height int
}

// NewBuffer allocates a zeroed w×h buffer.
func NewBuffer(w, h int) *Buffer {
	if w < 0 || h < 0 {
		w, h = 0, 0
	}
	return &Buffer{Pix: make([]byte, w*h*4), Width: w, Height: h}
}

// Ready reports whether the buffer has pixels to work on.
func (b *Buffer) Ready() bool {
	return b != nil && b.Width > 0 && b.Height > 0 && len(b.Pix) >= b.Width*b.Height*4
}

// FromNRGBA wraps img without copying when its rows are contiguous;
// otherwise it copies into a fresh buffer.
func FromNRGBA(img *image.NRGBA) *Buffer {
	r := img.Bounds()
	w, h := r.Dx(), r.Dy()
	if img.Stride == w*4 {
		off := img.PixOffset(r.Min.X, r.Min.Y)
		return &Buffer{Pix: img.Pix[off : off+w*h*4], Width: w, Height: h}
	}
	b := NewBuffer(w, h)
	for y := 0; y < h; y++ {
		off := img.PixOffset(r.Min.X, r.Min.Y+y)
		copy(b.Pix[y*w*4:(y+1)*w*4], img.Pix[off:off+w*4])
	}
	return b
}

// FromImage converts any image to a fresh buffer.
func FromImage(src image.Image) *Buffer {
	if n, ok := src.(*image.NRGBA); ok {
		return FromNRGBA(n)
	}
	r := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return FromNRGBA(dst)
}

// NRGBA views the buffer as an image sharing the same pixels.
func (b *Buffer) NRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix[:b.Width*b.Height*4],
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	cp := &Buffer{Pix: make([]byte, len(b.Pix)), Width: b.Width, Height: b.Height}
	copy(cp.Pix, b.Pix)
	return cp
}
