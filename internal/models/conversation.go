package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RecentTurns returns at most n trailing turns.
func RecentTurns(history []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 || len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
