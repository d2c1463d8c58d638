package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvAPIKey        = "CHATRELAY_API_KEY"
	EnvDiscordToken  = "CHATRELAY_DISCORD_TOKEN"
	EnvTelegramToken = "CHATRELAY_TELEGRAM_TOKEN"
	EnvSlackBotToken = "CHATRELAY_SLACK_BOT_TOKEN"
	EnvSlackAppToken = "CHATRELAY_SLACK_APP_TOKEN"
)

// ConfigPath returns the default configuration file path: ~/.chatrelay/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// DataDir returns the chatrelay data directory: ~/.chatrelay.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatrelay"
	}
	return filepath.Join(home, ".chatrelay")
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads and parses the config file at path, then applies environment
// overrides. If path is empty, ConfigPath() is used. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
// On parse failure it prints a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := unmarshal(path, data, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to parse config %s: %v\n", path, err)
		fmt.Fprintln(os.Stderr, "Using default configuration.")
		cfg = DefaultConfig()
	}

	applyEnv(&cfg)
	return &cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider.APIKey, EnvAPIKey)
	set(&cfg.Channels.Discord.Token, EnvDiscordToken)
	set(&cfg.Channels.Telegram.Token, EnvTelegramToken)
	set(&cfg.Channels.Slack.BotToken, EnvSlackBotToken)
	set(&cfg.Channels.Slack.AppToken, EnvSlackAppToken)
}

// Save writes cfg to path as indented JSON, or YAML for .yaml/.yml paths.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		// Append a trailing newline for POSIX compliance.
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
