// Package llm provides the judge-model transport: a unified client over
// OpenAI, Anthropic, and Google providers with middleware for retries,
// timeouts, rate limiting, circuit breaking, metrics, and tracing.
//
// The judge only needs deterministic JSON completions, so the surface is
// deliberately small: providers implement CoreLLM, middleware wraps it, and
// the Client adapts the chain to ports.LLMClient.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/aerograde/flygrade/internal/ports"
)

// CoreLLM is the minimal provider contract the middleware chain wraps.
type CoreLLM interface {
	// DoRequest sends a prompt and returns the response text plus input and
	// output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Middleware wraps a CoreLLM to add cross-cutting behavior. Middleware is
// applied in reverse order so the first entry is outermost.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds provider settings and the middleware chain.
type ClientConfig struct {
	// APIKey authenticates to the provider.
	APIKey string
	// Model selects the judge model; empty uses the provider default.
	Model string
	// BaseURL overrides the provider endpoint, e.g. OPENAI_API_BASE.
	BaseURL string
	// Timeout sets the HTTP client timeout of the OpenAI provider; the
	// Anthropic and Google providers do not read it.
	Timeout time.Duration
	// Middleware entries wrap the provider outermost-first.
	Middleware []Middleware
}

// ProviderFactory builds a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a provider under a name. Providers
// self-register from init functions.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	providerFactories[name] = factory
}

// Client adapts a middleware-wrapped CoreLLM to ports.LLMClient.
type Client struct {
	core CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient assembles a provider with its middleware chain.
func NewClient(provider string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	factory, ok := providerFactories[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", provider, err)
	}
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}
	return &Client{core: core}, nil
}

// Complete sends a prompt and returns the response text.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.core.DoRequest(ctx, prompt, options)
	return response, err
}

// EstimateTokens approximates token count at four characters per token.
func (c *Client) EstimateTokens(text string) (int, error) {
	return EstimateTokens(text), nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string { return c.core.GetModel() }

// EstimateTokens is the shared character-based token estimate used when a
// provider response lacks usage counts.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
