// Package bus defines the message types that flow between chat gateways and
// the conversation engine.
package bus

type ChannelType string

const (
	ChannelDiscord  ChannelType = "discord"
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelCLI      ChannelType = "cli"
)

const ChatIdDirect = "direct"
