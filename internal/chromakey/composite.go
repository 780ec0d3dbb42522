package chromakey

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	_ "image/jpeg"
)

// Composite keys buf in place with profile p. Buffers that are not Ready
// are left untouched. Composite keeps no state between calls.
func Composite(buf *Buffer, p *Profile) {
	if !buf.Ready() || p == nil {
		return
	}
	switch p.Mode {
	case ModeCentroid:
		compositeSingle(buf, p)
	case ModeGradient:
		compositeGradient(buf, p)
	default:
		compositeTiered(buf, p)
	}
}

func compositeSingle(buf *Buffer, p *Profile) {
	pix := buf.Pix[:buf.Width*buf.Height*4]
	for i := 0; i < len(pix); i += 4 {
		if p.Classify(pix[i], pix[i+1], pix[i+2]) {
			pix[i+3] = 0
		}
	}
}

func compositeGradient(buf *Buffer, p *Profile) {
	pix := buf.Pix[:buf.Width*buf.Height*4]
	for i := 0; i < len(pix); i += 4 {
		if a, ok := p.gradientAlpha(p.measure(pix[i], pix[i+1], pix[i+2])); ok {
			pix[i+3] = toByte(a)
		}
	}
}

func compositeTiered(buf *Buffer, p *Profile) {
	w, h := buf.Width, buf.Height
	pix := buf.Pix

	bg := make([]bool, w*h)
	for i := range bg {
		o := i * 4
		bg[i] = p.Classify(pix[o], pix[o+1], pix[o+2])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			o := i * 4
			if bg[i] {
				pix[o+3] = 0
				continue
			}
			if p.Halo == nil && p.Fringe == nil {
				continue
			}

			n := countBackground(bg, w, h, x, y)
			if n == 0 {
				continue
			}
			px := p.measure(pix[o], pix[o+1], pix[o+2])
			alpha := float64(pix[o+3])

			if hl := p.Halo; hl != nil && px.dominance > hl.Dominance {
				ratio := float64(n) / 9
				for _, s := range hl.Steps {
					if ratio > s.Above {
						alpha = math.Max(0, alpha*(1-ratio*s.Strength))
						break
					}
				}
			}
			if f := p.Fringe; f != nil && n > f.MinNeighbours && f.Rule.match(px) {
				alpha = math.Max(0, alpha*f.Factor)
			}
			pix[o+3] = toByte(alpha)
		}
	}
}

// countBackground counts background pixels in the 3×3 window around (x,y),
// clipped at the edges. The window includes (x,y) itself.
func countBackground(bg []bool, w, h, x, y int) int {
	n := 0
	for dy := -1; dy <= 1; dy++ {
		ny := y + dy
		if ny < 0 || ny >= h {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := x + dx
			if nx < 0 || nx >= w {
				continue
			}
			if bg[ny*w+nx] {
				n++
			}
		}
	}
	return n
}

func toByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}

// CompositeImage keys a copy of img and returns it; img is not modified.
func CompositeImage(img image.Image, p *Profile) *image.NRGBA {
	var buf *Buffer
	if n, ok := img.(*image.NRGBA); ok {
		buf = FromNRGBA(n).Clone()
	} else {
		buf = FromImage(img)
	}
	Composite(buf, p)
	return buf.NRGBA()
}

// CompositePNG decodes a PNG or JPEG from r, keys it and writes a PNG to w.
func CompositePNG(w io.Writer, r io.Reader, p *Profile) error {
	img, _, err := image.Decode(r)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return png.Encode(w, CompositeImage(img, p))
}

// EncodePNG is a small helper for painters that serve frames.
func EncodePNG(img image.Image) ([]byte, error) {
	var b bytes.Buffer
	if err := png.Encode(&b, img); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
