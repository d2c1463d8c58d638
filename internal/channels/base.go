// Package channels provides chat-platform channel implementations.
package channels

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/bus"
)

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.ChannelType
	b           bus.Bus
	allowFrom   []string // empty = allow all
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.ChannelType, b bus.Bus, allowFrom []string) Base {
	return Base{channelName: name, b: b, allowFrom: allowFrom}
}

// IsAllowed checks whether senderID is on the allowlist.
// senderID may be "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	for _, part := range strings.Split(senderID, "|") {
		if part == "" {
			continue
		}
		for _, allowed := range b.allowFrom {
			if allowed == part || allowed == senderID {
				return true
			}
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then pushes an InboundMessage
// to the bus. Content that is empty after trimming is dropped.
func (b *Base) HandleMessage(senderId, chatId, content string, metadata map[string]any) {
	if !b.IsAllowed(senderId) {
		slog.Warn("access denied", "channel", b.channelName, "sender", senderId)
		return
	}
	content = strings.TrimSpace(content)
	if content == "" {
		slog.Debug("empty message after normalisation", "channel", b.channelName, "chat", chatId)
		return
	}

	msg := bus.NewInboundMessage(b.channelName, senderId, chatId, content)
	msg.SetMetadata(metadata)
	b.b.PublishInbound(msg)
}

var (
	reUserMention = regexp.MustCompile(`<@!?\d+>`)
	reRoleMention = regexp.MustCompile(`<@&\d+>`)
)

// StripMentions removes Discord user and role mention markup and trims the
// result.
func StripMentions(s string) string {
	s = reUserMention.ReplaceAllString(s, "")
	s = reRoleMention.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
