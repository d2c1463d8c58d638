package channel

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Token          string   `json:"token" yaml:"token"`
	AllowFrom      []string `json:"allowFrom" yaml:"allowFrom"`
	Proxy          string   `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	ReplyToMessage bool     `json:"replyToMessage" yaml:"replyToMessage"`
}

func DefaultTelegramConfig() TelegramConfig {
	return TelegramConfig{AllowFrom: []string{}}
}
