package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatrelay/internal/dependency"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/session"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored conversation history",
}

func init() {
	historyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List conversations with stored history",
		RunE: withHistory(func(_ context.Context, _ session.Backend, s *session.Store, _ []string) error {
			ids := s.Channels()
			if len(ids) == 0 {
				fmt.Println("No stored conversations.")
				return nil
			}
			for _, id := range ids {
				fmt.Printf("  %-40s %d messages\n", id, s.Count(id))
			}
			return nil
		}),
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "show <conversation>",
		Short: "Print a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE: withBackend(func(ctx context.Context, b session.Backend, args []string) error {
			msgs, err := session.ReadChannel(ctx, b, args[0])
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Printf("No history for %s\n", args[0])
				return nil
			}
			for _, m := range msgs {
				stamp := "-"
				if !m.Timestamp.IsZero() {
					stamp = m.Timestamp.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Printf("[%s] %-9s %s\n", stamp, m.Role, llmutils.Truncate(m.Content, 200))
			}
			fmt.Printf("\n%d messages, ~%d tokens\n", len(msgs), session.EstimateHistory(msgs))
			return nil
		}),
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "add <conversation> <user|assistant> <text>",
		Short: "Append a message to a stored conversation",
		Args:  cobra.ExactArgs(3),
		RunE: withBackend(func(ctx context.Context, b session.Backend, args []string) error {
			role, err := schema.ParseRole(args[1])
			if err != nil {
				return err
			}
			if _, err := session.AppendStored(ctx, b, args[0], role, args[2]); err != nil {
				return err
			}
			fmt.Printf("✓ Added %s message to %s\n", role, args[0])
			return nil
		}),
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "count <conversation>",
		Short: "Print the number of stored messages",
		Args:  cobra.ExactArgs(1),
		RunE: withHistory(func(ctx context.Context, b session.Backend, s *session.Store, args []string) error {
			n := s.Count(args[0])
			if docs, ok := b.(session.DocumentStore); ok {
				var err error
				if n, err = docs.CountByChannel(ctx, args[0]); err != nil {
					return err
				}
			}
			fmt.Println(n)
			return nil
		}),
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear <conversation>",
		Short: "Delete a conversation's history",
		Args:  cobra.ExactArgs(1),
		RunE: withHistory(func(ctx context.Context, b session.Backend, s *session.Store, args []string) error {
			id := args[0]
			if docs, ok := b.(session.DocumentStore); ok {
				if err := docs.DeleteByChannel(ctx, id); err != nil {
					return err
				}
			} else {
				s.Clear(id)
				if err := s.SaveAll(ctx); err != nil {
					return err
				}
			}
			fmt.Printf("✓ Cleared %s\n", id)
			return nil
		}),
	})
}

type historyFunc func(ctx context.Context, b session.Backend, s *session.Store, args []string) error

// withBackend opens the configured backend before running fn.
func withBackend(fn func(ctx context.Context, b session.Backend, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := dependency.NewBackend(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, b, args)
	}
}

// withHistory also loads the backend into a Store.
func withHistory(fn historyFunc) func(*cobra.Command, []string) error {
	return withBackend(func(ctx context.Context, b session.Backend, args []string) error {
		s := session.NewStore(b)
		if err := s.LoadAll(ctx); err != nil {
			return err
		}
		return fn(ctx, b, s, args)
	})
}
