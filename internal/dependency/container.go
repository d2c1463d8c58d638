// Package dependency wires core chatrelay services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/chatrelay/internal/agent"
	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/channels"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/config/storage"
	"github.com/crystaldolphin/chatrelay/internal/health"
	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/session"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg      *config.Config
	backend  session.Backend
	store    *session.Store
	flusher  *session.Flusher
	provider *providers.OpenAIProvider
	msgBus   *bus.MessageBus
	console  *bus.ConsoleBus
	channels *channels.Manager
	engine   *agent.Engine
	loop     *agent.AgentLoop
	health   *health.Service
}

func (c *Container) Backend() session.Backend            { return c.backend }
func (c *Container) Store() *session.Store               { return c.store }
func (c *Container) Flusher() *session.Flusher           { return c.flusher }
func (c *Container) Provider() *providers.OpenAIProvider { return c.provider }
func (c *Container) MessageBus() *bus.MessageBus         { return c.msgBus }
func (c *Container) ConsoleBus() *bus.ConsoleBus         { return c.console }
func (c *Container) Channels() *channels.Manager         { return c.channels }
func (c *Container) Engine() *agent.Engine               { return c.engine }
func (c *Container) AgentLoop() *agent.AgentLoop         { return c.loop }
func (c *Container) Health() *health.Service             { return c.health }

// Run starts the relay loop, the channels and the background services
// enabled in the config, and blocks until ctx is cancelled. History is
// saved once more after every in-flight turn has finished.
func (c *Container) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.loop.Run(gctx) })
	g.Go(func() error { return c.channels.StartAll(gctx) })
	if c.cfg.Storage.AutoSave.Enabled {
		g.Go(func() error { return c.flusher.Start(gctx) })
	}
	if c.cfg.Health.Enabled {
		g.Go(func() error { return c.health.Start(gctx) })
	}

	err := g.Wait()
	if ferr := c.flusher.Flush(context.Background()); ferr != nil {
		slog.Error("dependency: final save failed", "err", ferr)
	}
	return err
}

// Close releases the storage backend.
func (c *Container) Close() error { return c.backend.Close() }

// Options selects the channels the container's Manager registers.
type Options struct {
	CLI      bool
	Gateways bool
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config, opts Options) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() Options { return opts }); err != nil {
		return nil, err
	}
	for _, ctor := range []any{
		NewBackend,
		newStore,
		newFlusher,
		newProvider,
		newMessageBus,
		newConsoleBus,
		newChannelManager,
		newEngine,
		newAgentLoop,
		newHealthService,
	} {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		backend session.Backend,
		store *session.Store,
		flusher *session.Flusher,
		provider *providers.OpenAIProvider,
		msgBus *bus.MessageBus,
		console *bus.ConsoleBus,
		mgr *channels.Manager,
		engine *agent.Engine,
		loop *agent.AgentLoop,
		hs *health.Service,
	) {
		result = &Container{
			cfg:      cfg,
			backend:  backend,
			store:    store,
			flusher:  flusher,
			provider: provider,
			msgBus:   msgBus,
			console:  console,
			channels: mgr,
			engine:   engine,
			loop:     loop,
			health:   hs,
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// NewBackend opens the history backend selected by cfg.Storage.Backend.
func NewBackend(cfg *config.Config) (session.Backend, error) {
	switch cfg.Storage.Backend {
	case storage.BackendSQLite:
		b, err := session.NewSQLiteBackend(cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return b, nil
	case storage.BackendFile, "":
		b, err := session.NewFileBackend(cfg.HistoryPath(), session.BackupOptions{
			Enabled:  cfg.Storage.Backup.Enabled,
			Dir:      cfg.BackupPath(),
			MaxFiles: cfg.Storage.Backup.MaxFiles,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalid, cfg.Storage.Backend)
	}
}

func newStore(b session.Backend) *session.Store {
	return session.NewStore(b)
}

func newFlusher(cfg *config.Config, s *session.Store) *session.Flusher {
	return session.NewFlusher(s, seconds(cfg.Storage.AutoSave.IntervalSeconds))
}

func newProvider(cfg *config.Config) (*providers.OpenAIProvider, error) {
	p := cfg.Provider
	if !p.Configured() {
		return nil, fmt.Errorf("no API key configured: set %s or edit %s", config.EnvAPIKey, config.ConfigPath())
	}
	return providers.New(providers.Params{
		APIKey:         p.APIKey,
		APIBase:        p.APIBase,
		Model:          p.Model,
		Temperature:    p.Temperature,
		MaxTokens:      p.MaxTokens,
		ExtraHeaders:   p.ExtraHeaders,
		ConnectTimeout: seconds(p.ConnectTimeoutSeconds),
		Timeout:        seconds(p.TimeoutSeconds),
		Retry: providers.RetryPolicy{
			MaxAttempts: p.Retry.MaxAttempts,
			BaseDelay:   time.Duration(p.Retry.BaseDelayMs) * time.Millisecond,
		},
	}), nil
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newConsoleBus() *bus.ConsoleBus {
	return bus.NewConsoleBus(10)
}

func newChannelManager(cfg *config.Config, b *bus.MessageBus, console *bus.ConsoleBus, opts Options) *channels.Manager {
	return channels.NewManager(cfg, b, channels.ManagerOptions{
		CLI:      opts.CLI,
		Console:  console,
		Gateways: opts.Gateways,
	})
}

func newEngine(cfg *config.Config, s *session.Store, p *providers.OpenAIProvider) *agent.Engine {
	return agent.NewEngine(s, p, cfg.Conversation.MaxContextTokens)
}

func newAgentLoop(cfg *config.Config, b *bus.MessageBus, e *agent.Engine, mgr *channels.Manager) *agent.AgentLoop {
	return agent.NewAgentLoop(b, e, mgr, seconds(cfg.Conversation.TypingIntervalSeconds))
}

func newHealthService(cfg *config.Config) *health.Service {
	h := cfg.Health
	return health.NewService(h.Hosts, seconds(h.IntervalSeconds), time.Duration(h.TimeoutMs)*time.Millisecond)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
