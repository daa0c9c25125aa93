package trigger

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// tokenPattern matches :shortcode: emoji or runs of letters and digits.
var tokenPattern = regexp.MustCompile(`:[\pL\pN_+\-]+:|[\pL\pN][\pL\pN\pM]*`)

// normalize folds case, strips combining marks and recomposes.
func normalize(s string) string {
	// casers and transformers are stateful, build fresh ones per call
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, cases.Fold().String(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Tokenize splits text into normalized tokens in order of appearance.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if n := normalize(tok); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// unspaced reports whether word is written in a script without word separators.
func unspaced(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return false
		}
	}
	return true
}
