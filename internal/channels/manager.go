package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// Manager owns all enabled channels, routes outbound messages to them and
// forwards typing refreshes to channels that support it.
type Manager struct {
	channels map[bus.ChannelType]schema.Channel
	b        bus.Bus
}

// ManagerOptions selects which channels NewManager registers.
type ManagerOptions struct {
	// CLI registers the terminal channel; it needs the console bus.
	CLI     bool
	Console *bus.ConsoleBus
	// Gateways registers every chat platform enabled in the config.
	Gateways bool
}

// NewManager creates a Manager and initialises the selected channels.
func NewManager(cfg *config.Config, b bus.Bus, opts ManagerOptions) *Manager {
	m := &Manager{
		channels: make(map[bus.ChannelType]schema.Channel),
		b:        b,
	}

	if opts.CLI {
		m.register(NewCLIChannel(b, opts.Console))
	}
	if !opts.Gateways {
		return m
	}
	if cfg.Channels.Discord.Enabled {
		m.register(NewDiscordChannel(&cfg.Channels.Discord, b, cfg.Conversation.MessageLimit))
	}
	if cfg.Channels.Telegram.Enabled {
		m.register(NewTelegramChannel(&cfg.Channels.Telegram, b))
	}
	if cfg.Channels.Slack.Enabled {
		m.register(NewSlackChannel(&cfg.Channels.Slack, b))
	}
	return m
}

func (m *Manager) register(ch schema.Channel) {
	m.channels[bus.ChannelType(ch.Name())] = ch
	slog.Info("channel enabled", "name", ch.Name())
}

// EnabledChannels returns the names of all enabled channels, sorted.
func (m *Manager) EnabledChannels() []string {
	names := make([]string, 0, len(m.channels))
	for n := range m.channels {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

// StartAll starts all channels concurrently and dispatches outbound messages.
// It blocks until ctx is cancelled, or until the CLI channel exits.
func (m *Manager) StartAll(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.dispatchOutbound(ctx)
	}()

	for name, ch := range m.channels {
		wg.Add(1)
		go func(n bus.ChannelType, c schema.Channel) {
			defer wg.Done()
			slog.Info("starting channel", "name", n)
			err := c.Start(ctx)
			if err != nil && ctx.Err() == nil {
				slog.Error("channel exited with error", "name", n, "err", err)
			}
			// Leaving the REPL ends an interactive session.
			if n == bus.ChannelCLI && ctx.Err() == nil {
				cancel()
			}
		}(name, ch)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// dispatchOutbound reads from the outbound stream and routes each message to
// the matching channel's Send method.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-m.b.OutboundChan():
			ch, ok := m.channels[msg.Channel()]
			if !ok {
				slog.Debug("unknown channel for outbound message", "channel", msg.Channel())
				continue
			}
			if err := ch.Send(ctx, msg); err != nil {
				slog.Error("send error", "channel", msg.Channel(), "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SendTyping refreshes the typing indicator on channel, if it has one.
func (m *Manager) SendTyping(ctx context.Context, channel bus.ChannelType, chatID string) error {
	ch, ok := m.channels[channel]
	if !ok {
		return fmt.Errorf("unknown channel %q", channel)
	}
	tn, ok := ch.(schema.TypingNotifier)
	if !ok {
		return nil
	}
	return tn.SendTyping(ctx, chatID)
}
