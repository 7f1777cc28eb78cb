package model

// TokenBudget is the cumulative cost at which pruning starts. It leaves roughly
// 500 tokens of a 4096-token context for the next user turn and reply.
const TokenBudget = 3596

// PruneIfNeeded evicts the oldest completed exchanges (the user/assistant pair right after
// the system turn) together with the oldest cost entries until the cost sum fits the budget.
//
// The system turn and the newest exchange are never evicted, so a single exchange that alone
// exceeds the budget is left in place. Inputs are not modified.
func PruneIfNeeded(transcript []Turn, costs []int, budget int) ([]Turn, []int, int) {
	turns := append([]Turn(nil), transcript...)
	history := append([]int(nil), costs...)

	evicted := 0
	for sumCosts(history) > budget && len(history) > 1 && len(turns) >= 3 {
		turns = append(turns[:1], turns[3:]...)
		history = history[1:]
		evicted++
	}
	return turns, history, evicted
}
