package overlay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"dealboard/internal/celebration"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	cases := []struct{ in, want string }{
		{"João da Silva", "joao_da_silva"},
		{"  Gabriela  ", "_gabriela_"},
		{"Márcio D'Ávila", "marcio_davila"},
		{"ÇÃO-ñ", "caon"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeName(c.in); got != c.want {
			t.Errorf("NormalizeName(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestIsTestValueName(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"Valor de Teste 1": true,
		"Some TEST VALUE":  true,
		"teste":            true,
		"test":             true,
		"Teste":            false,
		"Testemunha":       false,
		"Bruno":            false,
	}
	for in, want := range cases {
		if got := IsTestValueName(in); got != want {
			t.Errorf("IsTestValueName(%q)=%v", in, got)
		}
	}
}

func TestInitial(t *testing.T) {
	t.Parallel()
	if Initial("ana") != "A" || Initial("  élio") != "É" || Initial("") != "?" {
		t.Fatal("unexpected initials")
	}
}

func TestFormatBRL(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{
		5000:      "R$ 5.000",
		1234567.6: "R$ 1.234.568",
		0:         "R$ 0",
		999:       "R$ 999",
		-2500:     "-R$ 2.500",
	}
	for in, want := range cases {
		if got := FormatBRL(in); got != want {
			t.Errorf("FormatBRL(%v)=%q want %q", in, got, want)
		}
	}
}

func TestFormatBody(t *testing.T) {
	t.Parallel()
	n := celebration.Notification{
		DealName: "Acme", Amount: 5000,
		OwnerName: "Bruno", SDRName: "Gabriela",
		CompanyName: "Acme S.A.",
	}
	want := "Acme\n💰 Valor: R$ 5.000\n👔 EV: Bruno\n📞 SDR: Gabriela\n🏢 Empresa: Acme S.A."
	if got := FormatBody(n); got != want {
		t.Fatalf("body=%q", got)
	}

	n.ProductName = "Rastreio Premium"
	if got := FormatBody(n); !strings.HasSuffix(got, "📦 Produto: Rastreio Premium") || strings.Contains(got, "Empresa") {
		t.Fatalf("body=%q", got)
	}

	bare := celebration.Notification{DealName: "X", Amount: 1000}
	if got := FormatBody(bare); got != "X\n💰 Valor: R$ 1.000" {
		t.Fatalf("bare=%q", got)
	}
}

func TestParseTheme(t *testing.T) {
	t.Parallel()
	if th, ok := ParseTheme(" Natal "); !ok || th != ThemeNatal {
		t.Fatalf("natal=%v %v", th, ok)
	}
	if th, ok := ParseTheme("halloween"); ok || th != ThemeBlackNovember {
		t.Fatalf("unknown=%v %v", th, ok)
	}
	if ThemeNatal.Title() == ThemePadrao.Title() {
		t.Fatal("natal title should differ")
	}
}

func TestBuilderUsesPhotosAndPlaceholders(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "joao_da_silva.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	b := NewBuilder(ThemePadrao, &PhotoResolver{Base: dir, Public: "/team"})
	o := b.Build(context.Background(), celebration.Notification{
		ID: "7", DealName: "Acme", Amount: 3000,
		OwnerName: "João da Silva", SDRName: "Valor de teste", LDRName: "Zé",
	})
	if o.Title != ThemePadrao.Title() || o.AmountText != "R$ 3.000" || len(o.Members) != 3 {
		t.Fatalf("overlay=%+v", o)
	}
	if o.Members[0].PhotoURL != "/team/joao_da_silva.png" {
		t.Fatalf("photo=%q", o.Members[0].PhotoURL)
	}
	if o.Members[1].PhotoURL != "" || o.Members[1].Placeholder != "V" {
		t.Fatalf("test value member=%+v", o.Members[1])
	}
	if o.Members[2].PhotoURL != "" || o.Members[2].Placeholder != "Z" {
		t.Fatalf("missing photo member=%+v", o.Members[2])
	}
	if o.Detail != nil {
		t.Fatalf("detail=%+v", o.Detail)
	}

	b.SetTheme(ThemeNatal)
	if got := b.Build(context.Background(), celebration.Notification{}).Theme; got != ThemeNatal {
		t.Fatalf("theme=%v", got)
	}
}

func TestPhotoResolverHTTPCaches(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodHead {
			t.Errorf("method=%s", r.Method)
		}
		if r.URL.Path != "/img/ana.png" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	p := &PhotoResolver{Base: srv.URL + "/img/", Client: srv.Client()}
	ctx := context.Background()
	if got := p.Resolve(ctx, "Ana"); got != srv.URL+"/img/ana.png" {
		t.Fatalf("ana=%q", got)
	}
	if got := p.Resolve(ctx, "Ana"); got == "" {
		t.Fatal("cached lookup lost")
	}
	if got := p.Resolve(ctx, "Bia"); got != "" {
		t.Fatalf("bia=%q", got)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d", hits.Load())
	}
}

func TestCardRendersAllLines(t *testing.T) {
	t.Parallel()
	o := NewBuilder(ThemeBlackNovember, nil).Build(context.Background(), celebration.Notification{
		DealName: "Integração", Amount: 5000, OwnerName: "Bruno", ProductName: "Rastreio",
	})
	lines := o.Lines()
	want := []string{"CONTRATO ASSINADO!", "Integracao", "Valor: R$ 5.000", "EV: Bruno", "Produto: Rastreio"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines=%q", lines)
	}
	img := o.Card()
	if img.Bounds().Dx() != cardWidth || img.Bounds().Dy() != cardPadding*2+lineHeight*len(want)+4 {
		t.Fatalf("bounds=%v", img.Bounds())
	}
	if c := img.NRGBAAt(0, 0); c != palettes[ThemeBlackNovember].accent {
		t.Fatalf("accent bar=%v", c)
	}
}

func TestOverlayBodyMatchesFormatBody(t *testing.T) {
	t.Parallel()
	n := celebration.Notification{
		ID: "1", DealName: "Acme", Amount: 7500,
		OwnerName: "Bruno", LDRName: "Marcelo", ProductName: "Rastreio",
	}
	o := NewBuilder(ThemePadrao, nil).Build(context.Background(), n)
	if o.Body() != FormatBody(n) {
		t.Fatalf("body=%q\nwant=%q", o.Body(), FormatBody(n))
	}
}

func TestPhotoResolverGivesUpOnSilentHost(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := &PhotoResolver{Base: srv.URL, LookupTimeout: 50 * time.Millisecond}
	start := time.Now()
	if got := p.Resolve(context.Background(), "Ana"); got != "" {
		t.Fatalf("url=%q", got)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("lookup took %v", took)
	}
}
