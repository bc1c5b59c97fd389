package qa

import "strings"

// Role identifies the speaker of a chat turn.
type Role string

// Roles accepted in chat history. Anything that is not human is the assistant.
const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// DefaultHistoryWindow is the number of most recent turns kept per request.
const DefaultHistoryWindow = 5

// ChatTurn is one message of the conversation.
type ChatTurn struct {
	Role    Role
	Content string
}

// RawTurn is a chat turn as clients send it.
type RawTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ParseRole maps "human" to RoleHuman and every other value to RoleAssistant.
func ParseRole(role string) Role {
	if strings.EqualFold(strings.TrimSpace(role), string(RoleHuman)) {
		return RoleHuman
	}
	return RoleAssistant
}

// ParseHistory converts client turns into ChatTurns, keeping their order.
func ParseHistory(raw []RawTurn) []ChatTurn {
	history := make([]ChatTurn, len(raw))
	for i, turn := range raw {
		history[i] = ChatTurn{Role: ParseRole(turn.Role), Content: turn.Content}
	}
	return history
}

// Window returns a copy of the last n turns in their original order. Older
// turns are dropped.
func Window(history []ChatTurn, n int) []ChatTurn {
	if n <= 0 || len(history) == 0 {
		return []ChatTurn{}
	}
	start := 0
	if len(history) > n {
		start = len(history) - n
	}
	out := make([]ChatTurn, len(history)-start)
	copy(out, history[start:])
	return out
}
