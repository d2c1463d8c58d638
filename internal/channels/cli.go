package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/shared/cmdutils"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires the terminal into the relay loop: lines typed on stdin are
// published as inbound messages and replies arrive on the ConsoleBus.
type CLIChannel struct {
	Base
	console *bus.ConsoleBus
	in      io.Reader
}

// NewCLIChannel creates a CLIChannel reading from stdin.
func NewCLIChannel(b bus.Bus, console *bus.ConsoleBus) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, b, nil),
		console: console,
		in:      os.Stdin,
	}
}

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start runs the REPL. It blocks until ctx is cancelled, an exit command is
// typed, or stdin is closed.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Printf("CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Print("You: ")

		scanDone := make(chan bool, 1)
		go func() {
			scanDone <- scanner.Scan()
		}()

		select {
		case ok := <-scanDone:
			if !ok {
				fmt.Println("\nGoodbye!")
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}

		c.HandleMessage(bus.SenderIdCLI, bus.ChatIdDirect, line, nil)
		c.waitForReply(ctx)
	}
}

func (c *CLIChannel) waitForReply(ctx context.Context) {
	select {
	case msg := <-c.console.Subscribe():
		cmdutils.PrintResponse(msg.Content())
	case <-ctx.Done():
	}
}

// Send hands the reply to the REPL through the console bus. The terminal has
// no size limit, so the reply is not split.
func (c *CLIChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.console.Publish(msg)
	return nil
}
