package providers

import "time"

const (
	DefaultAPIBase = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

// Params are the raw values needed to construct an OpenAIProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	APIKey       string
	APIBase      string
	Model        string
	Temperature  float64
	MaxTokens    int
	ExtraHeaders map[string]string

	ConnectTimeout time.Duration
	Timeout        time.Duration
	Retry          RetryPolicy
}

// New creates the completion client for p, filling in defaults for unset
// fields.
func New(p Params) *OpenAIProvider {
	if p.APIBase == "" {
		p.APIBase = DefaultAPIBase
	}
	if p.Model == "" {
		p.Model = DefaultModel
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = 4000
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = 10 * time.Second
	}
	if p.Timeout <= 0 {
		p.Timeout = 60 * time.Second
	}
	return NewOpenAIProvider(p)
}
