package overlay

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRun    = regexp.MustCompile(`\s+`)
	notNameChar = regexp.MustCompile(`[^a-z0-9_]`)
)

// combining diacritical marks block (U+0300–U+036F)
var stripMarks = runes.Remove(runes.Predicate(func(r rune) bool { return r >= 0x300 && r <= 0x36f }))

// NormalizeName maps a display name to its photo file stem:
// "João da Silva" -> "joao_da_silva".
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	s := strings.ToLower(name)
	s, _, _ = transform.String(transform.Chain(norm.NFD, stripMarks), s)
	s = spaceRun.ReplaceAllString(s, "_")
	return notNameChar.ReplaceAllString(s, "")
}

// Fold strips accents and drops anything outside printable ASCII, keeping case.
// The card renderer's bitmap font only covers ASCII.
func Fold(s string) string {
	s, _, _ = transform.String(transform.Chain(norm.NFD, stripMarks, norm.NFC), s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || (r >= 0x20 && r < 0x7f) {
			return r
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return -1
	}, s)
}

// IsTestValueName reports CRM placeholder names that never have a photo.
func IsTestValueName(name string) bool {
	l := strings.ToLower(name)
	return strings.Contains(l, "valor de teste") ||
		strings.Contains(l, "test value") ||
		name == "teste" || name == "test"
}

// Initial is the placeholder letter shown when no photo exists.
func Initial(name string) string {
	for _, r := range strings.TrimSpace(name) {
		return strings.ToUpper(string(r))
	}
	return "?"
}

// DefaultLookupTimeout bounds one photo lookup.
const DefaultLookupTimeout = 2 * time.Second

// PhotoResolver finds team photos. Base is either an http(s) URL prefix,
// checked with HEAD, or a local directory, checked with stat. Results are
// cached for TTL. A lookup gives up after LookupTimeout (2s by default)
// and the placeholder is used.
type PhotoResolver struct {
	Base          string
	Public        string // URL prefix handed to displays for local photos
	Client        *http.Client
	TTL           time.Duration
	LookupTimeout time.Duration

	mu    sync.Mutex
	cache map[string]photoHit
}

type photoHit struct {
	url string
	at  time.Time
}

// Resolve returns the photo URL for name, or "" when the placeholder should be used.
func (p *PhotoResolver) Resolve(ctx context.Context, name string) string {
	if p == nil || strings.TrimSpace(p.Base) == "" || name == "" || IsTestValueName(name) {
		return ""
	}
	stem := NormalizeName(name)
	if stem == "" {
		return ""
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	p.mu.Lock()
	if h, ok := p.cache[stem]; ok && time.Since(h.at) < ttl {
		p.mu.Unlock()
		return h.url
	}
	p.mu.Unlock()

	timeout := p.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	url := p.lookup(lctx, stem)
	cancel()

	p.mu.Lock()
	if p.cache == nil {
		p.cache = map[string]photoHit{}
	}
	p.cache[stem] = photoHit{url: url, at: time.Now()}
	p.mu.Unlock()
	return url
}

func (p *PhotoResolver) lookup(ctx context.Context, stem string) string {
	file := stem + ".png"
	base := strings.TrimSpace(p.Base)
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		url := strings.TrimRight(base, "/") + "/" + file
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return ""
		}
		client := p.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return ""
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return ""
		}
		return url
	}

	if st, err := os.Stat(filepath.Join(base, file)); err != nil || st.IsDir() {
		return ""
	}
	public := p.Public
	if public == "" {
		public = "/static/img/team"
	}
	return strings.TrimRight(public, "/") + "/" + file
}
