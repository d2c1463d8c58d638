package channel

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Token      string   `json:"token" yaml:"token"`
	AllowFrom  []string `json:"allowFrom" yaml:"allowFrom"`
	GatewayURL string   `json:"gatewayUrl" yaml:"gatewayUrl"`
	Intents    int      `json:"intents" yaml:"intents"`
}

func DefaultDiscordConfig() DiscordConfig {
	return DiscordConfig{
		GatewayURL: "wss://gateway.discord.gg/?v=10&encoding=json",
		Intents:    37377, // GUILDS + GUILD_MESSAGES + DIRECT_MESSAGES + MESSAGE_CONTENT
		AllowFrom:  []string{},
	}
}
