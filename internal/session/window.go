package session

// EstimateTokens approximates the token count of a text as one token per
// four runes, rounded up. The estimate only has to be stable and monotonic
// in text length; exact tokenizer parity is not required.
func EstimateTokens(text string) int {
	return len([]rune(text))/4 + 1
}

// WindowedHistory returns the suffix of messages whose estimated token
// total fits within budget, preserving chronological order. Messages are
// dropped oldest-first and never split. A single message larger than the
// whole budget yields an empty window.
func WindowedHistory(messages []Message, budget int) []Message {
	if budget <= 0 {
		return nil
	}

	total := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	if start == len(messages) {
		return nil
	}
	return messages[start:]
}
