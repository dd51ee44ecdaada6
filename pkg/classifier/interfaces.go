package classifier

import "context"

// Callable is the pluggable seam standing in for an actual LLM SDK call:
// take a prompt, return the model's raw text completion. Both the real
// backend and tests implement this instead of a concrete provider client,
// so the provider wiring (HTTP transport, auth headers, retries) never
// leaks into the prompt/parse logic above it.
type Callable interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CallableFunc adapts a plain function to a Callable.
type CallableFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f CallableFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
