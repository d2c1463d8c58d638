package channels

import "strings"

// splitWindow is how far back from the limit SplitMessage looks for a
// natural break.
const splitWindow = 200

func isBreakRune(r rune) bool {
	switch r {
	case ' ', '\n', '.', ',', ';', '!', '?':
		return true
	}
	return false
}

// SplitMessage splits text into parts of at most limit characters. Each cut
// is placed just after the last space, newline or punctuation mark found in
// the window before the limit, or exactly at the limit when the window has
// none. Parts are trimmed; whitespace-only parts are dropped.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	if limit <= 0 {
		return nil
	}

	window := min(limit, splitWindow)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit-window; i-- {
			if isBreakRune(runes[i]) {
				cut = i + 1
				break
			}
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
