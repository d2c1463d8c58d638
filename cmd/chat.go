package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/dependency"
	"github.com/crystaldolphin/chatrelay/internal/shared/cmdutils"
)

var (
	chatMessage string
	chatID      string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant from the terminal",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "Send a single message and exit")
	chatCmd.Flags().StringVar(&chatID, "chat", bus.ChatIdDirect, "Conversation id under the cli channel")
}

func runChat(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := dependency.New(cfg, dependency.Options{CLI: chatMessage == ""})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Store().LoadAll(context.Background()); err != nil {
		slog.Error("chat: could not load history, starting empty", "err", err)
	}
	defer func() {
		if err := c.Flusher().Flush(context.Background()); err != nil {
			slog.Error("chat: save failed", "err", err)
		}
	}()

	if chatMessage != "" {
		return runSingleMessage(c)
	}
	return runInteractive(c)
}

// runSingleMessage sends one message and prints the reply.
func runSingleMessage(c *dependency.Container) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	cmdutils.PrintResponse(c.AgentLoop().ProcessDirect(ctx, bus.ChannelCLI, chatID, chatMessage))
	return nil
}

// runInteractive runs the REPL through the CLI channel until it exits.
func runInteractive(c *dependency.Container) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)

	g.Go(func() error { return c.AgentLoop().Run(loopCtx) })
	g.Go(func() error {
		defer stopLoop()
		return c.Channels().StartAll(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
