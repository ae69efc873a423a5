package ports

import "context"

// LLMClient is the transport boundary to a judge model provider.
// Implementations handle authentication, request formatting, retries, and
// timeouts behind this interface.
type LLMClient interface {
	// Complete sends a completion request and returns the generated text.
	// The options map carries provider-agnostic parameters such as
	// "temperature" (float64), "max_tokens" (int), and "response_format".
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// EstimateTokens approximates the token count of a text, for budget
	// accounting before a request is made.
	EstimateTokens(text string) (int, error)

	// GetModel returns the model identifier, stamped into record traces.
	GetModel() string
}
