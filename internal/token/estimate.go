// Package token approximates model token costs for budget comparisons.
// The numbers are not billing-accurate; they only need to be monotonic
// in text length and stable.
package token

import (
	"math"
	"strings"
	"unicode"
)

const (
	tokensPerWord        = 1.3
	tokensPerPunctuation = 0.3
	charsPerToken        = 4
)

// Estimate returns an approximate token count for text. Empty and
// whitespace-only input costs zero.
func Estimate(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	words := len(strings.Fields(trimmed))
	punct := 0
	for _, r := range trimmed {
		if unicode.IsPunct(r) {
			punct++
		}
	}
	return int(math.Ceil(float64(words)*tokensPerWord + float64(punct)*tokensPerPunctuation))
}

// ToChars converts a token budget into an approximate character budget,
// used when splitting text that has no usable structure.
func ToChars(tokens int) int {
	if tokens <= 0 {
		return 0
	}
	return tokens * charsPerToken
}
