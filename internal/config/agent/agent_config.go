package agent

const (
	MinContextTokens = 1000
	MinMessageLimit  = 100
	// MaxMessageLimit is Discord's per-message character cap.
	MaxMessageLimit  = 2000
)

// ConversationConfig bounds each channel's history and reply delivery.
type ConversationConfig struct {
	MaxContextTokens      int `json:"maxContextTokens" yaml:"maxContextTokens"`
	MessageLimit          int `json:"messageLimit" yaml:"messageLimit"`
	TypingIntervalSeconds int `json:"typingIntervalSeconds" yaml:"typingIntervalSeconds"`
}

func DefaultConversationConfig() ConversationConfig {
	return ConversationConfig{
		MaxContextTokens:      120000,
		MessageLimit:          2000,
		TypingIntervalSeconds: 2,
	}
}
