// Package slug derives and checks blog slugs, which double as file name stems
// in the remote repository.
package slug

import (
	"regexp"
	"strings"
)

var validRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Make converts a title to a URL-safe slug: lowercase ASCII letters, digits
// and underscores, with every other run of characters collapsed to a single
// dash.
func Make(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Valid reports whether s is safe to use as a path segment.
func Valid(s string) bool {
	return validRe.MatchString(s)
}
