// Package config defines the configuration schema for chatrelay.
//
// JSON keys use camelCase; the same keys are accepted from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/config/agent"
	"github.com/crystaldolphin/chatrelay/internal/config/channel"
	"github.com/crystaldolphin/chatrelay/internal/config/provider"
	"github.com/crystaldolphin/chatrelay/internal/config/storage"
)

// HealthConfig configures the periodic network reachability probe.
type HealthConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	IntervalSeconds int      `json:"intervalSeconds" yaml:"intervalSeconds"`
	TimeoutMs       int      `json:"timeoutMs" yaml:"timeoutMs"`
	Hosts           []string `json:"hosts" yaml:"hosts"`
}

func defaultHealthConfig() HealthConfig {
	return HealthConfig{
		Enabled:         true,
		IntervalSeconds: 300,
		TimeoutMs:       5000,
		Hosts:           []string{"discord.com", "openrouter.ai"},
	}
}

// Config is the root configuration object, loaded from ~/.chatrelay/config.json.
type Config struct {
	Provider     provider.ProviderConfig  `json:"provider" yaml:"provider"`
	Conversation agent.ConversationConfig `json:"conversation" yaml:"conversation"`
	Storage      storage.StorageConfig    `json:"storage" yaml:"storage"`
	Channels     channel.ChannelsConfig   `json:"channels" yaml:"channels"`
	Health       HealthConfig             `json:"health" yaml:"health"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Provider:     provider.DefaultProviderConfig(),
		Conversation: agent.DefaultConversationConfig(),
		Storage:      storage.DefaultStorageConfig(),
		Channels:     channel.DefaultChannelsConfig(),
		Health:       defaultHealthConfig(),
	}
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Validate rejects values the runtime cannot operate with.
func (c *Config) Validate() error {
	var errs []error
	if n := c.Conversation.MaxContextTokens; n < agent.MinContextTokens {
		errs = append(errs, fmt.Errorf("conversation.maxContextTokens must be >= %d, got %d", agent.MinContextTokens, n))
	}
	if n := c.Conversation.MessageLimit; n < agent.MinMessageLimit || n > agent.MaxMessageLimit {
		errs = append(errs, fmt.Errorf("conversation.messageLimit must be between %d and %d, got %d",
			agent.MinMessageLimit, agent.MaxMessageLimit, n))
	}
	if c.Provider.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("provider.retry.maxAttempts must be >= 1"))
	}
	switch c.Storage.Backend {
	case storage.BackendFile, storage.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be %q or %q, got %q",
			storage.BackendFile, storage.BackendSQLite, c.Storage.Backend))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// HistoryPath returns the expanded path of the JSON history file.
func (c *Config) HistoryPath() string { return ExpandPath(c.Storage.HistoryPath) }

// SQLitePath returns the expanded path of the SQLite database.
func (c *Config) SQLitePath() string { return ExpandPath(c.Storage.SQLitePath) }

// BackupPath returns the expanded backup directory.
func (c *Config) BackupPath() string { return ExpandPath(c.Storage.Backup.Path) }

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
