// Package fingerprint derives a content identity for highlight text that
// survives punctuation, whitespace, width and case differences.
//
// Two highlights with the same fingerprint are considered the same passage
// even if the reading platform issued them different bookmark identifiers.
//
// # Usage
//
//	fp := fingerprint.Of(bookmark.Text)
//	if fp != "" && ledger.ContainsFingerprint(fp) {
//		// already delivered under another id
//	}
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize keeps only the word characters of text: letters, digits and
// underscore after NFKC compatibility normalization, case-folded and
// concatenated without separators.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFKC.String(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return folder.String(b.String())
}

// Of returns the lowercase hex SHA-1 of the normalized text, or "" when
// nothing remains after normalization. An empty fingerprint never matches.
func Of(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	sum := sha1.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Func is the signature shared by Of and test doubles.
type Func func(text string) string
