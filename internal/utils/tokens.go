package utils

// EstimateTokens approximates the token count of text for bookkeeping
// when the provider response carries no usage data. Roughly one token
// per four characters, never less than one for non-empty input.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
