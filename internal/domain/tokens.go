package domain

import "strings"

// EstimateTokens performs deterministic word-based token counting. It is
// used when a provider response carries no usage block; the result is an
// approximation, not billed truth.
func EstimateTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}

// EstimateMessageTokens estimates the combined token count of a message
// sequence, including the role markers each provider prepends.
func EstimateMessageTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		// One token per role marker.
		total += 1 + EstimateTokens(msg.Content)
	}
	return total
}
