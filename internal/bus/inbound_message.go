package bus

import "time"

const SenderIdCLI = "user"

// InboundMessage is a turn addressed to the bot, received from a gateway.
// Content has already had platform mention markup stripped.
type InboundMessage struct {
	channel   ChannelType    // "discord", "telegram", "slack", "cli"
	senderId  string         // author identifier within the gateway
	chatId    string         // chat / channel / DM identifier
	content   string         // normalised message text
	timestamp time.Time      // when the message was received
	metadata  map[string]any // gateway-specific extra data (message_id, guild_id, …)
}

// NewInboundMessage creates an InboundMessage with the timestamp set to now.
func NewInboundMessage(channel ChannelType, senderId, chatId, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderId:  senderId,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) Channel() ChannelType           { return m.channel }
func (m InboundMessage) SenderId() string               { return m.senderId }
func (m InboundMessage) ChatId() string                 { return m.chatId }
func (m InboundMessage) Content() string                { return m.content }
func (m InboundMessage) Timestamp() time.Time           { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// SessionKey returns the conversation key, "channel:chatId".
func (m InboundMessage) SessionKey() string {
	return RoutingKey(m.channel, m.chatId)
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	r := []rune(m.content)
	if len(r) > 80 {
		return string(r[:80]) + "..."
	}
	return m.content
}
