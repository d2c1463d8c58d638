package schema

import (
	"context"

	"github.com/crystaldolphin/chatrelay/internal/bus"
)

// Channel is the interface every chat-platform adapter must implement.
type Channel interface {
	// Name returns the unique channel identifier (e.g. "discord").
	Name() string
	// Start begins listening for incoming messages; it blocks until ctx is cancelled.
	Start(ctx context.Context) error
	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// TypingNotifier is implemented by channels that can show a
// "bot is typing" indicator. Each call refreshes the indicator once.
type TypingNotifier interface {
	SendTyping(ctx context.Context, chatID string) error
}
