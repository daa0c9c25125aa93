package trigger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ExtractHashtags parses leading [tag] tokens. wellFormed is true only when at
// least one valid tag is followed by a non-empty body. A tag is a non-empty run
// without whitespace or brackets.
func ExtractHashtags(content string) (tags []string, wellFormed bool) {
	rest := strings.TrimLeftFunc(content, unicode.IsSpace)
	for strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return tags, false
		}
		tag := rest[1:end]
		if !validTag(tag) {
			return tags, false
		}
		tags = append(tags, tag)
		rest = strings.TrimLeftFunc(rest[end+1:], unicode.IsSpace)
	}
	return tags, len(tags) > 0 && rest != ""
}

func validTag(tag string) bool {
	if tag == "" || !utf8.ValidString(tag) {
		return false
	}
	return strings.IndexFunc(tag, func(r rune) bool {
		return unicode.IsSpace(r) || r == '[' || r == ']'
	}) < 0
}
