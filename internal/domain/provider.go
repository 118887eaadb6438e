package domain

import "context"

// ChatCall is a single dispatch to a model backend. The system prompt is
// carried separately because providers differ in how they accept it.
type ChatCall struct {
	Messages    []Message
	Model       string // concrete model identifier; empty = provider default
	System      string // system prompt text, already prefixed by policy
	MaxTokens   int
	Temperature *float64
}

// ProviderResult is what a backend returned for one call.
type ProviderResult struct {
	Message Message
	Usage   *Usage // nil when the backend reports no counters
}

// ChatProvider is the interface for any model backend.
type ChatProvider interface {
	// Chat sends a call and returns a complete response.
	Chat(ctx context.Context, call ChatCall) (*ProviderResult, error)
	// Name returns the provider's identifier (e.g., "openai", "anthropic").
	Name() string
}

// ProviderResolver looks up a registered backend by provider identifier.
type ProviderResolver interface {
	Get(name string) (ChatProvider, error)
}
