package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cardWidth   = 480
	cardPadding = 16
	lineHeight  = 18
)

type palette struct {
	bg, accent, text color.NRGBA
}

var palettes = map[Theme]palette{
	ThemeBlackNovember: {bg: color.NRGBA{0x0b, 0x0b, 0x0b, 0xff}, accent: color.NRGBA{0xff, 0xc1, 0x07, 0xff}, text: color.NRGBA{0xf5, 0xf5, 0xf5, 0xff}},
	ThemeNatal:         {bg: color.NRGBA{0x7f, 0x10, 0x10, 0xff}, accent: color.NRGBA{0x2e, 0xc2, 0x5a, 0xff}, text: color.NRGBA{0xff, 0xff, 0xff, 0xff}},
	ThemePadrao:        {bg: color.NRGBA{0x0d, 0x2b, 0x52, 0xff}, accent: color.NRGBA{0x1a, 0x97, 0xf1, 0xff}, text: color.NRGBA{0xff, 0xff, 0xff, 0xff}},
}

// Lines is the card text, top to bottom, ASCII-folded.
func (o Overlay) Lines() []string {
	lines := []string{
		strings.TrimSpace(Fold(o.Title)),
		Fold(o.DealName),
		"Valor: " + Fold(o.AmountText),
	}
	for _, m := range o.Members {
		lines = append(lines, string(m.Role)+": "+Fold(m.Name))
	}
	if o.Detail != nil {
		lines = append(lines, o.Detail.Label+": "+Fold(o.Detail.Value))
	}
	return lines
}

// Card renders a still image of the overlay for chat posts and the card endpoint.
func (o Overlay) Card() *image.NRGBA {
	pal, ok := palettes[o.Theme]
	if !ok {
		pal = palettes[ThemeBlackNovember]
	}
	lines := o.Lines()
	h := cardPadding*2 + lineHeight*len(lines) + 4
	img := image.NewNRGBA(image.Rect(0, 0, cardWidth, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(pal.bg), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, cardWidth, 4), image.NewUniform(pal.accent), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Face: face}
	maxW := fixed.I(cardWidth - 2*cardPadding)
	for i, line := range lines {
		d.Src = image.NewUniform(pal.text)
		if i == 0 {
			d.Src = image.NewUniform(pal.accent)
		}
		line = truncate(face, line, maxW)
		w := font.MeasureString(face, line)
		x := (fixed.I(cardWidth) - w) / 2
		if i > 0 {
			x = fixed.I(cardPadding)
		}
		d.Dot = fixed.Point26_6{X: x, Y: fixed.I(cardPadding + 4 + lineHeight*i + 13)}
		d.DrawString(line)
	}
	return img
}

func truncate(face font.Face, s string, max fixed.Int26_6) string {
	if font.MeasureString(face, s) <= max {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && font.MeasureString(face, string(r)+"...") > max {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
