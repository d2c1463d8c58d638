package bus

// OutboundMessage is a reply to be sent back through a gateway.
// Content is the full reply; gateways chunk it to their size limit.
type OutboundMessage struct {
	channel  ChannelType    // destination gateway
	chatId   string         // destination chat / channel / DM identifier
	content  string         // text to send
	replyTo  string         // original message ID to quote/reply to (optional)
	metadata map[string]any // gateway-specific hints (thread_ts, …)
}

func (m OutboundMessage) Channel() ChannelType           { return m.channel }
func (m OutboundMessage) ChatId() string                 { return m.chatId }
func (m OutboundMessage) Content() string                { return m.content }
func (m OutboundMessage) ReplyTo() string                { return m.replyTo }
func (m OutboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *OutboundMessage) SetReplyTo(id string)          { m.replyTo = id }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

func NewOutboundMessage(channel ChannelType, chatId, content string) OutboundMessage {
	return OutboundMessage{
		channel: channel,
		chatId:  chatId,
		content: content,
	}
}

// NewReply builds the outbound reply for in, preserving the gateway metadata
// so threaded platforms can answer in place.
func NewReply(in InboundMessage, content string) OutboundMessage {
	out := NewOutboundMessage(in.Channel(), in.ChatId(), content)
	out.SetMetadata(in.Metadata())
	if id, ok := in.Metadata()["message_id"].(string); ok {
		out.SetReplyTo(id)
	}
	return out
}
