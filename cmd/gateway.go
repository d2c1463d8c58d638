package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatrelay/internal/dependency"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the chatrelay gateway",
	RunE:  runGateway,
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := dependency.New(cfg, dependency.Options{Gateways: true})
	if err != nil {
		return err
	}
	defer c.Close()

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Store().LoadAll(ctx); err != nil {
		slog.Error("gateway: could not load history, starting empty", "err", err)
	}

	enabled := c.Channels().EnabledChannels()
	if len(enabled) == 0 {
		fmt.Println("Warning: no channels enabled")
	} else {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	}
	fmt.Printf("%s Starting chatrelay gateway (model %s)...\n", logo, c.Provider().Model())

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	err = c.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
