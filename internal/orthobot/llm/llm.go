// Package llm is the completion collaborator used by the orchestrator.
//
// The provider receives a system prompt plus a message list and returns the
// generated text. Any non-2xx answer, transport failure or timeout surfaces as
// a *fault.ProviderError, which the orchestrator turns into a localized
// apology.
package llm

import "context"

// Role values for Message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat turn sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request is the input to one completion call.
type Request struct {
	// System is sent as the leading "system" message.
	System string
	// Messages follow the system prompt in order.
	Messages []Message
	// MaxTokens caps the generated reply. Zero leaves it to the provider.
	MaxTokens int
	// Temperature is passed through unchanged.
	Temperature float64
}

// Completer generates a reply for a prompt.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
