package store

import (
	"strings"
	"unicode"
)

// NormalizeSlug reduces a user name, email or tab suffix to the slug used in
// natural keys: "Ken Sato", "ken_sato", "Ken.Sato@polycle.jp" and
// "ken-sato" all become "ken-sato".
func NormalizeSlug(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if at := strings.IndexByte(s, '@'); at >= 0 {
		s = s[:at]
	}

	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '-' || r == '_' || r == '.' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
