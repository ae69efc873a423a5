package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCore is a scriptable CoreLLM for middleware tests.
type mockCore struct {
	mu        sync.Mutex
	calls     int
	responses []func() (string, error)
}

func (m *mockCore) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	m.mu.Lock()
	i := m.calls
	m.calls++
	m.mu.Unlock()
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	text, err := m.responses[i]()
	if err != nil {
		return "", 0, 0, err
	}
	return text, EstimateTokens(prompt), EstimateTokens(text), nil
}

func (m *mockCore) GetModel() string { return "mock-model" }

func ok(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

func TestClientUnknownProvider(t *testing.T) {
	_, err := NewClient("nope", ClientConfig{APIKey: "k"})
	assert.Error(t, err)
}

func TestClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient("openai", ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestRetryMiddlewareRecovers(t *testing.T) {
	transient := &ProviderError{Type: ErrorTypeServerError, Provider: "mock"}
	core := &mockCore{responses: []func() (string, error){
		fail(transient), fail(transient), ok("hello"),
	}}
	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)

	text, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	assert.Equal(t, 3, core.calls)
}

func TestRetryMiddlewareStopsOnNonRetryable(t *testing.T) {
	authErr := &ProviderError{Type: ErrorTypeAuthentication, Provider: "mock"}
	core := &mockCore{responses: []func() (string, error){fail(authErr), ok("never")}}
	wrapped := RetryMiddleware(3, time.Millisecond, 10*time.Millisecond)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Equal(t, 1, core.calls)
	var provErr *ProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestRetryMiddlewareExhausts(t *testing.T) {
	transient := &ProviderError{Type: ErrorTypeRateLimit, Provider: "mock"}
	core := &mockCore{responses: []func() (string, error){fail(transient)}}
	wrapped := RetryMiddleware(2, time.Millisecond, 5*time.Millisecond)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.Error(t, err)
	assert.Equal(t, 3, core.calls)
}

// ctxWaitingCore blocks until its context expires.
type ctxWaitingCore struct{}

func (c *ctxWaitingCore) DoRequest(ctx context.Context, _ string, _ map[string]any) (string, int, int, error) {
	<-ctx.Done()
	return "", 0, 0, ctx.Err()
}

func (c *ctxWaitingCore) GetModel() string { return "slow-model" }

func TestTimeoutMiddleware(t *testing.T) {
	wrapped := TimeoutMiddleware(5 * time.Millisecond)(&ctxWaitingCore{})

	start := time.Now()
	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	boom := errors.New("boom")
	cb := NewCircuitBreaker(2, 10*time.Millisecond)

	require.Error(t, cb.Call(func() error { return boom }))
	require.Error(t, cb.Call(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without executing.
	executed := false
	err := cb.Call(func() error { executed = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, executed)

	// After the cooldown, a half-open probe closes the circuit on success.
	time.Sleep(15 * time.Millisecond)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	boom := &ProviderError{Type: ErrorTypeServerError, Provider: "mock"}
	core := &mockCore{responses: []func() (string, error){fail(boom)}}
	wrapped := CircuitBreakerMiddleware(1, time.Minute)(core)

	_, _, _, err := wrapped.DoRequest(context.Background(), "hi", nil)
	require.Error(t, err)

	_, _, _, err = wrapped.DoRequest(context.Background(), "hi", nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, core.calls)
}

func TestParseRequestOptions(t *testing.T) {
	opts := map[string]any{
		"temperature":     0.0,
		"max_tokens":      512,
		"system":          "be terse",
		"response_format": map[string]string{"type": "json_object"},
	}
	parsed := ParseRequestOptions(opts, "default-model")
	require.NotNil(t, parsed.Temperature)
	assert.Zero(t, *parsed.Temperature)
	assert.Equal(t, 512, parsed.MaxTokens)
	assert.Equal(t, "be terse", parsed.System)
	assert.True(t, parsed.JSONOnly)
	assert.Equal(t, "default-model", parsed.Model)

	defaults := ParseRequestOptions(nil, "m")
	assert.Equal(t, DefaultMaxTokens, defaults.MaxTokens)
	assert.Nil(t, defaults.Temperature)
	assert.False(t, defaults.JSONOnly)
}

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{401, false},
		{429, true},
		{400, false},
		{404, false},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		err := ClassifyHTTPError("test", tt.status, "msg", errors.New("raw"))
		assert.Equal(t, tt.retryable, err.IsRetryable(), "status %d", tt.status)
	}

	timeoutErr := ClassifyContextError("test", context.DeadlineExceeded)
	assert.True(t, timeoutErr.IsRetryable())
	assert.ErrorIs(t, timeoutErr, context.DeadlineExceeded)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 3, EstimateTokens("abcdefghij"))
}
