package extract

import (
	"regexp"
	"strings"
)

var (
	segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)
	nonSlug        = regexp.MustCompile(`[^a-z0-9-]`)
	dashes         = regexp.MustCompile(`-+`)
)

// ValidPathSegment reports whether s may be used as one segment of a
// pathstore key, such as a user or document id.
func ValidPathSegment(s string) bool {
	return segmentPattern.MatchString(s)
}

// Slugify converts a string to a URL/path-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}
