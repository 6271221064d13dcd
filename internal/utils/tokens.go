package utils

// Token estimation is a heuristic; it is only used to warn before a prompt
// is sent, never to truncate one.

// CountTokens estimates the number of tokens in the given text.
// Roughly 1 token per 4 characters.
func CountTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := len([]rune(text)) / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// TokenBreakdown returns a map of labeled sections to token counts.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
