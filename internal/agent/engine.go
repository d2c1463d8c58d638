// Package agent runs conversation turns: it records each inbound message,
// keeps the channel's history within the token budget, asks the completion
// API for a reply and records that too.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/session"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

// DefaultMaxContextTokens is the history budget used when none is configured.
const DefaultMaxContextTokens = 120000

// ErrEmptyInput is returned by HandleTurn for blank text. Callers drop it.
var ErrEmptyInput = errors.New("empty input")

// Engine orchestrates one request/response turn per call.
type Engine struct {
	store            *session.Store
	completer        providers.Completer
	maxContextTokens int
}

func NewEngine(store *session.Store, completer providers.Completer, maxContextTokens int) *Engine {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &Engine{store: store, completer: completer, maxContextTokens: maxContextTokens}
}

func (e *Engine) Store() *session.Store { return e.store }

// HandleTurn appends userText to channelID's history, trims the history to
// the token budget, and sends what remains to the completer. On success the
// reply is appended and returned. On failure the user message stays recorded
// and the completer's classified error is returned.
func (e *Engine) HandleTurn(ctx context.Context, channelID, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyInput
	}

	if _, err := e.store.Append(channelID, schema.RoleUser, userText); err != nil {
		return "", err
	}
	if removed := e.store.TrimToBudget(channelID, e.maxContextTokens); removed > 0 {
		slog.Info("agent: history trimmed", "channel", channelID, "removed", removed)
	}
	history := e.store.History(channelID)

	reply, err := e.completer.Complete(ctx, history)
	if err != nil {
		return "", fmt.Errorf("turn %s: %w", channelID, err)
	}
	reply = strings.TrimSpace(llmutils.StripThink(reply))
	if reply == "" {
		reply = providers.NoResponseText
	}

	if _, err := e.store.Append(channelID, schema.RoleAssistant, reply); err != nil {
		return "", err
	}
	slog.Debug("agent: turn complete", "channel", channelID,
		"messages", len(history)+1, "tokens", session.EstimateHistory(history))
	return reply, nil
}

// Reset clears channelID's history.
func (e *Engine) Reset(channelID string) {
	e.store.Clear(channelID)
}
