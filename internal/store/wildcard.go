package store

import (
	"regexp"
	"strings"
)

// IsWildcard reports whether s contains a '?' or '*'.
func IsWildcard(s string) bool {
	return strings.ContainsAny(s, "?*")
}

// CompilePattern translates a wildcard pattern into an anchored regexp.
// '?' matches exactly one character and '*' zero or more, newlines
// included; every other rune matches itself.
//
// Case-insensitive patterns fold Unicode case. SQLite's LIKE folds ASCII
// only, so "ÄP*" finds "äpfel" in a MemoryStore but not in a SQLiteStore.
func CompilePattern(pattern string, caseSensitive bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if caseSensitive {
		b.WriteString("(?s)^")
	} else {
		b.WriteString("(?is)^")
	}
	for _, r := range pattern {
		switch r {
		case '?':
			b.WriteString(".")
		case '*':
			b.WriteString(".*")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// ToGlob translates a wildcard pattern into a SQLite GLOB expression.
// GLOB already treats '?' and '*' as wildcards; '[' and ']' are escaped
// as one-character classes so they match literally.
func ToGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '[':
			b.WriteString("[[]")
		case ']':
			b.WriteString("[]]")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToLike translates a wildcard pattern into a LIKE expression to be
// used with ESCAPE '\'.
func ToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '?':
			b.WriteByte('_')
		case '*':
			b.WriteByte('%')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
