// Package conversation holds the client-carried chat history types.
package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Recent returns at most n of the latest turns. The input is not modified.
func Recent(turns []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// Valid reports whether every turn has a known role and non-empty text.
func Valid(turns []Turn) bool {
	for _, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return false
		}
		if t.Text == "" {
			return false
		}
	}
	return true
}
