package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/config/storage"
	"github.com/crystaldolphin/chatrelay/internal/health"
	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

var statusProbe bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatrelay status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Check network reachability of the configured hosts")
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := resolvedConfigPath()

	fmt.Printf("%s chatrelay Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(exists(cfgPath)))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  (invalid config: %v)\n", err)
	}

	fmt.Printf("Model:     %s\n", cfg.Provider.Model)
	fmt.Printf("API base:  %s\n", llmutils.StringOrDefault(cfg.Provider.APIBase, providers.DefaultAPIBase))
	fmt.Printf("API key:   %s\n\n", mark(cfg.Provider.Configured()))

	historyPath := cfg.HistoryPath()
	if cfg.Storage.Backend == storage.BackendSQLite {
		historyPath = cfg.SQLitePath()
	}
	fmt.Printf("Storage:   %s %s %s\n", cfg.Storage.Backend, historyPath, mark(exists(historyPath)))
	fmt.Printf("Budget:    %d tokens, %d chars per message\n\n", cfg.Conversation.MaxContextTokens, cfg.Conversation.MessageLimit)

	fmt.Println("Channels:")
	fmt.Printf("  %-10s %s\n", "discord", yesNo(cfg.Channels.Discord.Enabled))
	fmt.Printf("  %-10s %s\n", "telegram", yesNo(cfg.Channels.Telegram.Enabled))
	fmt.Printf("  %-10s %s\n", "slack", yesNo(cfg.Channels.Slack.Enabled))

	if !statusProbe {
		return nil
	}
	fmt.Println("\nNetwork:")
	hs := health.NewService(cfg.Health.Hosts, time.Minute, time.Duration(cfg.Health.TimeoutMs)*time.Millisecond)
	_ = hs.CheckAll(context.Background())
	for _, st := range hs.Status() {
		if st.Reachable {
			fmt.Printf("  %-20s ✓ %s\n", st.Host, st.Latency.Round(time.Millisecond))
		} else {
			fmt.Printf("  %-20s ✗ %s\n", st.Host, st.Err)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func yesNo(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
