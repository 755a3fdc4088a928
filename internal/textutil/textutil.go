// Package textutil holds the string hygiene shared by the webhook path and
// the owner API.
package textutil

import (
	"regexp"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// SanitizeString removes null bytes and invalid UTF-8.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")

	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return s
}

// EscapeHTML escapes HTML special characters.
func EscapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#x27;")
	return s
}

// CleanText is applied to every piece of user supplied text before it is
// stored or forwarded.
func CleanText(s string) string {
	return EscapeHTML(SanitizeString(strings.TrimSpace(s)))
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// TruncateUTF16 cuts s so that it spans at most n UTF-16 code units, the unit
// Telegram measures message length in. Runes are never split.
func TruncateUTF16(s string, n int) string {
	units := 0
	for i, r := range s {
		w := len(utf16.Encode([]rune{r}))
		if w < 0 {
			w = 1
		}
		if units+w > n {
			return s[:i]
		}
		units += w
	}
	return s
}

// Preview shortens s to n runes and marks the cut with an ellipsis.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return TruncateRunes(s, n) + "..."
}

var (
	boldPattern = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	codePattern = regexp.MustCompile("`([^`\n]+)`")
)

// RenderTelegramHTML converts a plain model reply into Telegram's HTML subset:
// markup characters are escaped, **bold** and `code` spans become tags.
func RenderTelegramHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = codePattern.ReplaceAllString(s, "<code>$1</code>")
	s = boldPattern.ReplaceAllString(s, "<b>$1</b>")
	return s
}
