// Package slug derives URL-safe club identifiers from club names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxLength caps generated slugs.
const MaxLength = 80

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)
	multipleHyphens = regexp.MustCompile(`-+`)
)

// Make converts a name to a slug.
// "Book Lovers" -> "book-lovers".
// "Café Crème Readers" -> "cafe-creme-readers".
func Make(name string) string {
	s := norm.NFKD.String(name)

	s = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, s)

	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	s = multipleHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > MaxLength {
		s = strings.TrimRight(s[:MaxLength], "-")
	}
	return s
}

// Valid reports whether s is already in slug form.
func Valid(s string) bool {
	return s != "" && Make(s) == s
}
