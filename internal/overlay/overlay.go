package overlay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"dealboard/internal/celebration"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Theme string

const (
	ThemeBlackNovember Theme = "black-november"
	ThemeNatal         Theme = "natal"
	ThemePadrao        Theme = "padrao"
)

// ParseTheme maps unknown or empty names to the default theme.
func ParseTheme(s string) (Theme, bool) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case ThemeNatal:
		return ThemeNatal, true
	case ThemePadrao:
		return ThemePadrao, true
	case ThemeBlackNovember:
		return ThemeBlackNovember, true
	default:
		return ThemeBlackNovember, false
	}
}

// Title is the banner headline for a theme.
func (t Theme) Title() string {
	if t == ThemeNatal {
		return "🎄 CONTRATO ASSINADO! 🎅🏻"
	}
	return "🎉 CONTRATO ASSINADO! 🎉"
}

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount as Brazilian reais without decimals: "R$ 5.000".
func FormatBRL(v float64) string {
	n := int64(math.Round(v))
	if n < 0 {
		return "-R$ " + brl.Sprintf("%d", -n)
	}
	return "R$ " + brl.Sprintf("%d", n)
}

type MemberView struct {
	Name        string           `json:"name"`
	Role        celebration.Role `json:"role"`
	PhotoURL    string           `json:"photoUrl,omitempty"`
	Placeholder string           `json:"placeholder"`
}

// Detail is the product line, or the company line when no product is known.
type Detail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Overlay is everything a display needs to draw one celebration.
type Overlay struct {
	ID         celebration.ID `json:"id"`
	Theme      Theme          `json:"theme"`
	Title      string         `json:"title"`
	DealName   string         `json:"dealName"`
	Amount     float64        `json:"amount"`
	AmountText string         `json:"amountText"`
	Members    []MemberView   `json:"members"`
	Detail     *Detail        `json:"detail,omitempty"`
}

// Builder turns notifications into overlays for the current theme.
type Builder struct {
	Photos *PhotoResolver
	theme  atomic.Value // Theme
}

func NewBuilder(theme Theme, photos *PhotoResolver) *Builder {
	b := &Builder{Photos: photos}
	b.SetTheme(theme)
	return b
}

func (b *Builder) SetTheme(t Theme) {
	if t == "" {
		t = ThemeBlackNovember
	}
	b.theme.Store(t)
}

func (b *Builder) Theme() Theme {
	t, _ := b.theme.Load().(Theme)
	if t == "" {
		return ThemeBlackNovember
	}
	return t
}

func (b *Builder) Build(ctx context.Context, n celebration.Notification) Overlay {
	theme := b.Theme()
	o := Overlay{
		ID:         n.ID,
		Theme:      theme,
		Title:      theme.Title(),
		DealName:   n.DealName,
		Amount:     n.Amount,
		AmountText: FormatBRL(n.Amount),
		Detail:     detail(n),
	}
	for _, m := range n.Members() {
		o.Members = append(o.Members, MemberView{
			Name:        m.Name,
			Role:        m.Role,
			PhotoURL:    b.Photos.Resolve(ctx, m.Name),
			Placeholder: Initial(m.Name),
		})
	}
	return o
}

func detail(n celebration.Notification) *Detail {
	if p := strings.TrimSpace(n.ProductName); p != "" {
		return &Detail{Label: "Produto", Value: p}
	}
	if c := strings.TrimSpace(n.CompanyName); c != "" {
		return &Detail{Label: "Empresa", Value: c}
	}
	return nil
}

// FormatBody is the plain-text message for chat announcements.
func FormatBody(n celebration.Notification) string {
	members := make([]MemberView, 0, 3)
	for _, m := range n.Members() {
		members = append(members, MemberView{Name: m.Name, Role: m.Role})
	}
	return body(n.DealName, FormatBRL(n.Amount), members, detail(n))
}

// Body is FormatBody for an already built overlay.
func (o Overlay) Body() string {
	return body(o.DealName, o.AmountText, o.Members, o.Detail)
}

var roleIcons = map[celebration.Role]string{
	celebration.RoleEV:  "👔",
	celebration.RoleSDR: "📞",
	celebration.RoleLDR: "🎯",
}

func body(deal, amount string, members []MemberView, d *Detail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", deal)
	fmt.Fprintf(&b, "💰 Valor: %s\n", amount)
	for _, m := range members {
		fmt.Fprintf(&b, "%s %s: %s\n", roleIcons[m.Role], m.Role, m.Name)
	}
	switch {
	case d == nil:
	case d.Label == "Produto":
		fmt.Fprintf(&b, "📦 Produto: %s", d.Value)
	default:
		fmt.Fprintf(&b, "🏢 Empresa: %s", d.Value)
	}
	return strings.TrimRight(b.String(), "\n")
}
