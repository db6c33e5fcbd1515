package ranking

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// Tokenize case-folds text and splits it into distinct tokens of letters and
// digits in any script, in first-seen order. Single-character tokens are
// dropped.
func Tokenize(text string) []string {
	folded := cases.Fold().String(text)
	matches := tokenPattern.FindAllString(folded, -1)
	seen := make(map[string]struct{}, len(matches))
	tokens := make([]string, 0, len(matches))
	for _, match := range matches {
		if utf8.RuneCountInString(match) < 2 {
			continue
		}
		if _, ok := seen[match]; ok {
			continue
		}
		seen[match] = struct{}{}
		tokens = append(tokens, match)
	}
	return tokens
}
