package provider

const (
	DefaultAPIBase = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

// RetryConfig bounds retries of a failed completion call.
type RetryConfig struct {
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`
	BaseDelayMs int `json:"baseDelayMs" yaml:"baseDelayMs"`
}

// ProviderConfig holds the completion endpoint credentials and request
// parameters.
type ProviderConfig struct {
	APIKey                string            `json:"apiKey" yaml:"apiKey"`
	APIBase               string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Model                 string            `json:"model" yaml:"model"`
	Temperature           float64           `json:"temperature" yaml:"temperature"`
	MaxTokens             int               `json:"maxTokens" yaml:"maxTokens"`
	ExtraHeaders          map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
	ConnectTimeoutSeconds int               `json:"connectTimeoutSeconds" yaml:"connectTimeoutSeconds"`
	TimeoutSeconds        int               `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Retry                 RetryConfig       `json:"retry" yaml:"retry"`
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		APIBase:     DefaultAPIBase,
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   4000,
		ExtraHeaders: map[string]string{
			"HTTP-Referer": "https://localhost:8080",
			"X-Title":      "chatrelay",
		},
		ConnectTimeoutSeconds: 10,
		TimeoutSeconds:        60,
		Retry:                 RetryConfig{MaxAttempts: 3, BaseDelayMs: 1000},
	}
}

// Configured reports whether an API key is present.
func (p *ProviderConfig) Configured() bool { return p.APIKey != "" }
