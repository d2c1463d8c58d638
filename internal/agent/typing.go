package agent

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/bus"
)

// TypingSender refreshes a channel's activity indicator once per call.
type TypingSender interface {
	SendTyping(ctx context.Context, channel bus.ChannelType, chatID string) error
}

// startTyping refreshes the indicator immediately and then every interval
// until the returned stop function is called. stop blocks until the
// refresher goroutine has exited.
func startTyping(ctx context.Context, sender TypingSender, interval time.Duration, channel bus.ChannelType, chatID string) (stop func()) {
	if sender == nil || interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			if err := sender.SendTyping(ctx, channel, chatID); err != nil && ctx.Err() == nil {
				slog.Debug("agent: typing refresh failed", "channel", channel, "err", err)
			}
			select {
			case <-tick.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
