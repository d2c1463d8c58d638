package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/channels"
)

// AgentLoop relays inbound chat messages through the Engine.
//
// It reads InboundMessages from the bus and handles each one in its own
// goroutine, publishing either the reply or a user-facing error text.
type AgentLoop struct {
	bus            bus.Bus
	engine         *Engine
	typing         TypingSender
	typingInterval time.Duration
	wg             sync.WaitGroup
}

// NewAgentLoop creates an AgentLoop. typing may be nil.
func NewAgentLoop(b bus.Bus, engine *Engine, typing TypingSender, typingInterval time.Duration) *AgentLoop {
	return &AgentLoop{
		bus:            b,
		engine:         engine,
		typing:         typing,
		typingInterval: typingInterval,
	}
}

// Run reads from the inbound bus and processes each message in a goroutine.
// Blocks until ctx is cancelled, then waits for in-flight turns to finish.
func (loop *AgentLoop) Run(ctx context.Context) error {
	slog.Info("Agent loop started")

	for {
		select {
		case msg := <-loop.bus.InboundChan():
			loop.wg.Add(1)
			go func() {
				defer loop.wg.Done()
				loop.handleMessage(ctx, msg)
			}()
		case <-ctx.Done():
			slog.Info("Agent loop stopping")
			loop.wg.Wait()
			return ctx.Err()
		}
	}
}

// ProcessDirect runs one turn outside the bus and returns the reply text,
// or the user-facing error text when the turn fails.
func (loop *AgentLoop) ProcessDirect(ctx context.Context, channel bus.ChannelType, chatID, content string) string {
	msg := bus.NewInboundMessage(channel, bus.SenderIdCLI, chatID, content)
	out, ok := loop.processMessage(ctx, msg)
	if !ok {
		return ""
	}
	return out.Content()
}

func (loop *AgentLoop) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	// In-flight turns run to completion on shutdown; the HTTP deadlines bound them.
	ctx = context.WithoutCancel(ctx)

	stop := startTyping(ctx, loop.typing, loop.typingInterval, msg.Channel(), msg.ChatId())
	out, ok := loop.processMessage(ctx, msg)
	stop()

	if ok {
		loop.bus.PublishOutbound(out)
	}
}

func (loop *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, bool) {
	slog.Info(
		"Processing message",
		"sender", msg.SenderId(),
		"channel", msg.Channel(),
		"content", msg.Preview(),
	)

	key := msg.SessionKey()
	if out, ok := loop.handleSlashCommand(msg, key); ok {
		return out, true
	}

	reply, err := loop.engine.HandleTurn(ctx, key, msg.Content())
	switch {
	case errors.Is(err, ErrEmptyInput):
		return bus.OutboundMessage{}, false
	case err != nil:
		slog.Error("agent: turn failed", "session", key, "err", err)
		return bus.NewReply(msg, channels.UserFacingError(err)), true
	}

	slog.Info("Response", "channel", msg.Channel(), "sender", msg.SenderId(), "length", len(reply))
	return bus.NewReply(msg, reply), true
}

// handleSlashCommand handles /new and /help. ok is false for anything else.
func (loop *AgentLoop) handleSlashCommand(msg bus.InboundMessage, key string) (bus.OutboundMessage, bool) {
	switch strings.TrimSpace(strings.ToLower(msg.Content())) {
	case "/new":
		loop.engine.Reset(key)
		slog.Info("agent: history cleared by user", "session", key)
		return bus.NewReply(msg, "New conversation started."), true
	case "/help":
		return bus.NewReply(msg, "chatrelay commands:\n/new: start a new conversation\n/help: show available commands"), true
	}
	return bus.OutboundMessage{}, false
}
