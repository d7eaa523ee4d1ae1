package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases and strips all whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// CollapseSpace trims s and folds every run of whitespace into a single
// space.
func CollapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

// Words splits s into lowercase words, punctuation is a separator.
func Words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// FuzzyContains reports whether every word of query shows up in text,
// either literally or as a word with a Jaro-Winkler similarity of at least
// threshold. An empty query matches nothing.
func FuzzyContains(text, query string, threshold float64) bool {
	queryWords := Words(query)
	if len(queryWords) == 0 {
		return false
	}
	if strings.Contains(NormalizeName(text), NormalizeName(query)) {
		return true
	}

	textWords := Words(text)
	for _, q := range queryWords {
		found := false
		for _, w := range textWords {
			if w == q || matchr.JaroWinkler(w, q, false) >= threshold {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Truncate cuts s to at most max runes, ending in an ellipsis when cut.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}
