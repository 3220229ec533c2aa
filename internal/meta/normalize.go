package meta

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// Bracketed or parenthetical annotation with surrounding whitespace
	annotationRe = regexp.MustCompile(`\s*[(\[].*?[)\]]\s*`)

	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes a title, artist or album into the key used for
// exact and fuzzy matching:
//   - lowercase
//   - drop "(...)" and "[...]" annotations, unless that leaves fewer than
//     2 characters, in which case the annotations are kept
//   - replace anything but letters, digits, underscore, whitespace, hyphen,
//     apostrophe and ampersand with a space
//   - collapse whitespace
//
// Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// Unicode NFC normalization
	text = norm.NFC.String(text)

	// Lowercase
	text = strings.ToLower(text)

	// Titles that are entirely parenthetical keep their content
	stripped := annotationRe.ReplaceAllString(text, " ")
	if utf8.RuneCountInString(strings.TrimSpace(stripped)) >= 2 {
		text = stripped
	}

	text = strings.Map(keepWordRune, text)

	return collapseWhitespace(text)
}

// keepWordRune maps every rune outside the key alphabet to a space
func keepWordRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
		return r
	case r == '-', r == '\'', r == '&':
		return r
	}
	// Includes non-ASCII spaces such as NBSP, which \s does not match
	return ' '
}

// collapseWhitespace replaces runs of whitespace with a single space
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// SanitizePathFragment removes characters that cannot appear in a file or
// directory name on common filesystems, so the result can be used inside a
// glob pattern.
func SanitizePathFragment(s string) string {
	if s == "" {
		return ""
	}

	s = norm.NFC.String(s)

	s = strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, s)

	s = removeControlChars(s)

	return strings.TrimSpace(s)
}

// removeControlChars removes non-printable control characters
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// Truncate returns the first n runes of s
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
