package channel

// SlackConfig configures the Slack channel (Socket Mode only).
type SlackConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	BotToken      string   `json:"botToken" yaml:"botToken"`
	AppToken      string   `json:"appToken" yaml:"appToken"`
	ReplyInThread bool     `json:"replyInThread" yaml:"replyInThread"`
	AllowFrom     []string `json:"allowFrom" yaml:"allowFrom"`
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{ReplyInThread: true, AllowFrom: []string{}}
}
