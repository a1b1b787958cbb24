package llm

import "context"

// Role identifies the speaker of a conversation turn.
const (
	RoleUser   = "user"
	RoleAvatar = "avatar"
)

// Turn is one entry of the per-session conversation history.
type Turn struct {
	Role string
	Text string
}

// Completer produces a single plain-text response for a prompt with
// conversation context. Implementations must honor ctx cancellation so
// superseded speculative calls abort promptly.
type Completer interface {
	Complete(ctx context.Context, system string, history []Turn, prompt string) (string, error)
}
