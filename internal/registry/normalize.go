package registry

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes compatibility forms (non-breaking hyphens, full-width
// letters) and drops combining marks before recomposing.
var foldMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// delimiterRe matches any run of hyphen, underscore, dash or whitespace.
var delimiterRe = regexp.MustCompile(`[\s_\-\x{2010}-\x{2015}\x{2212}]+`)

// Normalize folds a raw technology identifier into the form used for alias
// lookup:
//  1. Unicode compatibility folding and accent stripping
//  2. Lowercasing
//  3. Collapsing hyphen/underscore/space runs into a single space
//  4. Trimming
//
// "Vanadium-Redox-Flow", "vanadium_redox flow" and "VANADIUM  REDOX-FLOW"
// all normalize to "vanadium redox flow".
func Normalize(raw string) string {
	s, _, err := transform.String(foldMarks, raw)
	if err != nil {
		s = raw
	}
	s = strings.ToLower(s)
	s = delimiterRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
