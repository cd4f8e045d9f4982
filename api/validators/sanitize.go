package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims, drops control characters and folds runs of
// whitespace to one space, then cuts to maxLen runes. Listing titles and
// buyer names arrive in Japanese as often as English, so the cut never
// splits a multi-byte character.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace := false
	n := 0
	for _, r := range strings.TrimSpace(input) {
		if unicode.IsSpace(r) {
			pendingSpace = true
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if maxLen > 0 && n >= maxLen {
			break
		}
		if pendingSpace {
			if maxLen > 0 && n+1 >= maxLen {
				break
			}
			b.WriteByte(' ')
			n++
			pendingSpace = false
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}
