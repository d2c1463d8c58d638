package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// Flusher periodically persists a Store and flushes once more on shutdown.
// Flush failures are logged; they never reach the request path.
type Flusher struct {
	store    *Store
	interval time.Duration

	mu        sync.Mutex
	lastSaved uint64
	saved     bool
}

// NewFlusher creates a Flusher. interval defaults to 30 seconds if zero.
func NewFlusher(store *Store, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{store: store, interval: interval}
}

// Start runs the flush schedule until ctx is cancelled, then performs a
// final flush. It waits for an in-progress scheduled flush before the final one.
func (f *Flusher) Start(ctx context.Context) error {
	c := robfigcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", f.interval), func() {
		f.flush(context.WithoutCancel(ctx))
	}); err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}
	c.Start()
	slog.Info("session: auto-save started", "interval", f.interval)

	<-ctx.Done()
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	f.flush(shutdownCtx)
	slog.Info("session: auto-save stopped")
	return ctx.Err()
}

// Flush saves the store if it changed since the last successful flush.
func (f *Flusher) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.store.Version()
	if f.saved && v == f.lastSaved {
		return nil
	}
	if err := f.store.SaveAll(ctx); err != nil {
		return err
	}
	f.lastSaved = v
	f.saved = true
	return nil
}

func (f *Flusher) flush(ctx context.Context) {
	if err := f.Flush(ctx); err != nil {
		slog.Error("session: flush failed", "err", err)
	}
}
