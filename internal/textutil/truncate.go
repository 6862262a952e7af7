// Package textutil holds small string helpers shared by the transport,
// session and trace packages.
package textutil

import "unicode/utf8"

// Cut returns the longest prefix of s that is at most n bytes and ends on a
// rune boundary.
func Cut(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// CutBytes is Cut for byte slices.
func CutBytes(b []byte, n int) []byte {
	if n <= 0 {
		return b[:0]
	}
	if len(b) <= n {
		return b
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return b[:n]
}

// Truncate cuts s to at most n bytes and appends "..." when anything was
// removed.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return Cut(s, n) + "..."
}
