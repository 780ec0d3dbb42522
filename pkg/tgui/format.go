package tgui

import (
	"html"
	"strings"
	"unicode/utf8"
)

// H is already-escaped Telegram HTML.
type H string

func (h H) String() string { return string(h) }

func Esc(s string) H { return H(html.EscapeString(s)) }

func tag(name, s string) H {
	return H("<" + name + ">" + html.EscapeString(s) + "</" + name + ">")
}

func B(s string) H    { return tag("b", s) }
func I(s string) H    { return tag("i", s) }
func Code(s string) H { return tag("code", s) }

// JoinH joins the non-blank parts with sep.
func JoinH(sep string, parts ...H) H {
	var sb strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(string(p)) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(string(p))
	}
	return H(sb.String())
}

// TruncRunes keeps the first n runes of s, marking a cut with "…".
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	end := 0
	for range n {
		_, size := utf8.DecodeRuneInString(s[end:])
		end += size
	}
	return s[:end] + "…"
}

// Caption is a bold title, a blank line and the escaped body, cut so the
// visible text fits a photo caption.
func Caption(title, body string) H {
	room := MaxCaptionLen - utf8.RuneCountInString(title) - 3
	return JoinH("\n\n", B(title), Esc(TruncRunes(body, room)))
}
