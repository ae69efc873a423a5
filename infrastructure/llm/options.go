package llm

// RequestOptions is the provider-agnostic view of per-request parameters.
type RequestOptions struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	System      string
	// JSONOnly requests a JSON-object response format where the provider
	// supports it.
	JSONOnly bool
}

// DefaultMaxTokens bounds responses when the caller sets no limit.
const DefaultMaxTokens = 2000

// ParseRequestOptions extracts standardized parameters from the options
// map, applying defaults for anything missing or malformed.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	out := RequestOptions{
		Model:     defaultModel,
		MaxTokens: DefaultMaxTokens,
	}
	if opts == nil {
		return out
	}
	if m, ok := opts["model"].(string); ok && m != "" {
		out.Model = m
	}
	if n, ok := asInt(opts["max_tokens"]); ok && n > 0 {
		out.MaxTokens = n
	}
	if t, ok := asFloat(opts["temperature"]); ok && t >= 0 && t <= 2 {
		out.Temperature = &t
	}
	if s, ok := opts["system"].(string); ok {
		out.System = s
	}
	if rf, ok := opts["response_format"].(map[string]string); ok && rf["type"] == "json_object" {
		out.JSONOnly = true
	}
	if rf, ok := opts["response_format"].(map[string]any); ok {
		if t, ok := rf["type"].(string); ok && t == "json_object" {
			out.JSONOnly = true
		}
	}
	return out
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
