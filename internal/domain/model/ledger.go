package model

// TokenLedger tracks the per-exchange cost history of one conversation.
// Invariant after every RecordExchangeCost: Sum() == TotalTokens.
type TokenLedger struct {
	Costs       []int `json:"costs"`
	TotalTokens int   `json:"total_tokens"`
}

// RecordExchangeCost derives the marginal cost of the newest exchange from the
// cumulative total reported by the completion service and appends it.
// A total lower than the running sum yields a negative cost; it is kept as is.
func (l *TokenLedger) RecordExchangeCost(totalTokensAfterReply int) int {
	cost := totalTokensAfterReply - l.Sum()
	l.Costs = append(l.Costs, cost)
	l.TotalTokens = totalTokensAfterReply
	return cost
}

// Sum returns the total of the cost history.
func (l *TokenLedger) Sum() int {
	return sumCosts(l.Costs)
}

// Reset clears the history.
func (l *TokenLedger) Reset() {
	l.Costs = []int{}
	l.TotalTokens = 0
}

func sumCosts(costs []int) int {
	total := 0
	for _, c := range costs {
		total += c
	}
	return total
}
