package patients

import "strings"

// NormalizePhone canonicalizes a contact address to bare digits. Channel
// suffixes such as "@s.whatsapp.net" are stripped first, then every
// non-digit character. Matching is exact on the canonical form, no
// suffix-based fuzzy matching.
func NormalizePhone(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if at := strings.IndexByte(value, '@'); at >= 0 {
		value = value[:at]
	}
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
