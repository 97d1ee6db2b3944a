package querylang

import "strings"

// WildcardMatch reports whether s matches pattern in full.
// '*' matches any run of bytes, '?' matches exactly one byte, and a
// backslash makes the following byte literal. Matching is case-sensitive.
func WildcardMatch(s, pattern string) bool {
	var (
		si, pi         int
		starPi, starSi = -1, 0
	)
	for si < len(s) {
		if pi < len(pattern) {
			switch c := pattern[pi]; c {
			case '*':
				starPi, starSi = pi, si
				pi++
				continue
			case '?':
				si++
				pi++
				continue
			case '\\':
				if pi+1 < len(pattern) && pattern[pi+1] == s[si] {
					si++
					pi += 2
					continue
				}
			default:
				if c == s[si] {
					si++
					pi++
					continue
				}
			}
		}
		if starPi < 0 {
			return false
		}
		// Backtrack: let the last '*' absorb one more byte.
		starSi++
		si = starSi
		pi = starPi + 1
	}
	for pi < len(pattern) && pattern[pi] == '*' {
		pi++
	}
	return pi == len(pattern)
}

// HasWildcard reports whether s contains an unescaped '*' or '?'.
func HasWildcard(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '*', '?':
			return true
		}
	}
	return false
}

// UnescapeWildcards removes wildcard escapes, returning the literal string
// an escaped pattern without wildcards stands for.
func UnescapeWildcards(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
