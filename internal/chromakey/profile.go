package chromakey

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"
)

var ErrUnknownProfile = errors.New("unknown chromakey profile")

type Mode int

const (
	ModeTiered   Mode = iota // threshold tiers + halo + fringe
	ModeCentroid             // Euclidean distance to Target
	ModeGradient             // alpha falls off with key intensity
)

// KeyChannel selects which channel is the screen color.
type KeyChannel int

const (
	KeyGreen KeyChannel = iota
	KeyBlue
)

// Tier is one background classification rule. Zero Saturation, Ratio or
// Brightness disable that check.
type Tier struct {
	Key        float64 // key channel must exceed this
	Dominance  float64 // key - max(other two) must exceed this
	Saturation float64 // (max-min)/max must exceed this
	Ratio      float64 // key/(r+g+b) must exceed this
	OtherMax   float64 // both other channels must be below this
	Brightness float64 // max(r,g,b) must exceed this
}

// HaloStep fades alpha by Strength*ratio once the background ratio exceeds Above.
type HaloStep struct {
	Above    float64
	Strength float64
}

// Halo fades non-background pixels that border the removed background.
// Steps are checked in order and the first match applies.
type Halo struct {
	Dominance float64
	Steps     []HaloStep
}

// Fringe strongly fades key-tinted pixels with more than MinNeighbours
// background neighbours.
type Fringe struct {
	Rule          Tier
	MinNeighbours int
	Factor        float64
}

// Profile describes what counts as background. Profiles are immutable once built.
type Profile struct {
	Name string
	Mode Mode
	Key  KeyChannel

	Tiers  []Tier
	Halo   *Halo
	Fringe *Fringe

	Target    color.RGBA
	Tolerance float64

	GradientThreshold float64
	GradientDominance float64
	GradientRange     float64
}

// pixel holds the derived values every rule works from.
type pixel struct {
	key, a, b  float64 // key channel and the other two
	max, min   float64
	saturation float64
	dominance  float64
	ratio      float64
}

func (p *Profile) measure(r, g, b uint8) pixel {
	fr, fg, fb := float64(r), float64(g), float64(b)
	px := pixel{key: fg, a: fr, b: fb}
	if p.Key == KeyBlue {
		px = pixel{key: fb, a: fr, b: fg}
	}
	px.max = math.Max(fr, math.Max(fg, fb))
	px.min = math.Min(fr, math.Min(fg, fb))
	if px.max > 0 {
		px.saturation = (px.max - px.min) / px.max
	}
	px.dominance = px.key - math.Max(px.a, px.b)
	if sum := fr + fg + fb; sum > 0 {
		px.ratio = px.key / sum
	}
	return px
}

func (t Tier) match(px pixel) bool {
	if !(px.key > t.Key && px.dominance > t.Dominance) {
		return false
	}
	if t.Saturation > 0 && !(px.saturation > t.Saturation) {
		return false
	}
	if t.Ratio > 0 && !(px.ratio > t.Ratio) {
		return false
	}
	if !(px.a < t.OtherMax && px.b < t.OtherMax) {
		return false
	}
	if t.Brightness > 0 && !(px.max > t.Brightness) {
		return false
	}
	return true
}

// Classify reports whether (r,g,b) is background under the profile.
// Gradient profiles report pixels that become fully transparent.
func (p *Profile) Classify(r, g, b uint8) bool {
	switch p.Mode {
	case ModeCentroid:
		dr := float64(r) - float64(p.Target.R)
		dg := float64(g) - float64(p.Target.G)
		db := float64(b) - float64(p.Target.B)
		return math.Sqrt(dr*dr+dg*dg+db*db) <= p.Tolerance
	case ModeGradient:
		a, ok := p.gradientAlpha(p.measure(r, g, b))
		return ok && a == 0
	default:
		px := p.measure(r, g, b)
		for _, t := range p.Tiers {
			if t.match(px) {
				return true
			}
		}
		return false
	}
}

// gradientAlpha returns the keyed alpha (0..255) when the pixel is keyed at all.
func (p *Profile) gradientAlpha(px pixel) (float64, bool) {
	if !(px.key > p.GradientThreshold && px.dominance > p.GradientDominance) {
		return 0, false
	}
	span := p.GradientRange
	if span <= 0 {
		span = 80
	}
	keyRatio := math.Min(1, (px.key-p.GradientThreshold)/span)
	return math.Max(0, 1-keyRatio*2) * 255, true
}

var (
	strongGreen = Tier{Key: 100, Dominance: 40, Saturation: 0.4, OtherMax: 100}
	mediumGreen = Tier{Key: 80, Dominance: 30, Saturation: 0.3, OtherMax: 120, Brightness: 150}
	lightGreen  = Tier{Key: 60, Dominance: 25, Ratio: 0.4, OtherMax: 80}

	greenFringe = Fringe{
		Rule:          Tier{Key: 60, Dominance: 15, Saturation: 0.2, OtherMax: 100, Brightness: 100},
		MinNeighbours: 2,
		Factor:        0.2,
	}
	greenHalo = Halo{
		Dominance: 10,
		Steps:     []HaloStep{{Above: 0.3, Strength: 0.9}, {Above: 0.1, Strength: 0.5}},
	}
)

// Green is the mascot profile: three tiers, halo fade and fringe suppression.
func Green() *Profile {
	halo, fringe := greenHalo, greenFringe
	halo.Steps = append([]HaloStep(nil), greenHalo.Steps...)
	return &Profile{
		Name:   "green",
		Mode:   ModeTiered,
		Key:    KeyGreen,
		Tiers:  []Tier{strongGreen, mediumGreen, lightGreen},
		Halo:   &halo,
		Fringe: &fringe,
	}
}

// GreenFast classifies with the tiers only (medium tier without its
// brightness floor) and does no halo work. Used for static images.
func GreenFast() *Profile {
	medium := mediumGreen
	medium.Brightness = 0
	return &Profile{
		Name:  "green-fast",
		Mode:  ModeTiered,
		Key:   KeyGreen,
		Tiers: []Tier{strongGreen, medium, lightGreen},
	}
}

// Blue keys out pixels within Tolerance of #1a97f1.
func Blue() *Profile {
	return &Profile{
		Name:      "blue",
		Mode:      ModeCentroid,
		Key:       KeyBlue,
		Target:    color.RGBA{R: 26, G: 151, B: 241, A: 255},
		Tolerance: 40,
	}
}

// GreenGradient makes pixels more transparent the greener they are.
func GreenGradient() *Profile {
	return &Profile{
		Name:              "green-gradient",
		Mode:              ModeGradient,
		Key:               KeyGreen,
		GradientThreshold: 100,
		GradientDominance: 30,
		GradientRange:     80,
	}
}

// Registry resolves profiles by name. Safe for concurrent reads once built.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry holds the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: map[string]*Profile{}}
	for _, p := range []*Profile{Green(), GreenFast(), Blue(), GreenGradient()} {
		r.profiles[p.Name] = p
	}
	return r
}

func (r *Registry) Get(name string) (*Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "green"
	}
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Override describes a configured profile derived from a built-in one.
type Override struct {
	Base          string
	HaloDominance float64
	Tolerance     float64
	Target        string
	StrongKey     float64
	StrongDom     float64
}

// Register adds (or replaces) profile name, derived from o.Base with the
// non-zero fields of o applied.
func (r *Registry) Register(name string, o Override) error {
	base := o.Base
	if base == "" {
		base = name
	}
	src, err := r.Get(base)
	if err != nil {
		return err
	}
	p := *src
	p.Name = strings.ToLower(strings.TrimSpace(name))
	p.Tiers = append([]Tier(nil), src.Tiers...)
	if src.Halo != nil {
		h := *src.Halo
		p.Halo = &h
	}

	if o.HaloDominance > 0 && p.Halo != nil {
		p.Halo.Dominance = o.HaloDominance
	}
	if o.Tolerance > 0 {
		p.Tolerance = o.Tolerance
	}
	if o.Target != "" {
		c, err := ParseHex(o.Target)
		if err != nil {
			return err
		}
		p.Target = c
	}
	if len(p.Tiers) > 0 {
		if o.StrongKey > 0 {
			p.Tiers[0].Key = o.StrongKey
		}
		if o.StrongDom > 0 {
			p.Tiers[0].Dominance = o.StrongDom
		}
	}
	r.profiles[p.Name] = &p
	return nil
}

// ParseHex parses "#rrggbb".
func ParseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
