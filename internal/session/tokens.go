package session

import (
	"unicode/utf8"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// charsPerToken is the heuristic ratio used by EstimateTokens.
const charsPerToken = 4

// EstimateTokens approximates the token cost of text as one token per four
// characters, rounded down. It is not a tokenizer; treat the result as a
// rough budget figure only.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / charsPerToken
}

// EstimateHistory sums EstimateTokens over every message's content.
func EstimateHistory(msgs schema.Messages) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}
