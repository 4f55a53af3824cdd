package util

import "strings"

// Slugify lowercases the input and collapses every run of non-alphanumeric
// characters into a single hyphen. The result never starts or ends with a
// hyphen. An input with no usable characters slugifies to "untitled".
func Slugify(input string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(input) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	if slug == "" {
		return "untitled"
	}
	return slug
}
