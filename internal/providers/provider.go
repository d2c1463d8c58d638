// Package providers talks to the hosted completion API.
package providers

import (
	"context"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// NoResponseText is returned in place of a reply when the upstream answers
// with no choices.
const NoResponseText = "no response received"

// Completer turns an ordered history into the assistant's next reply.
type Completer interface {
	Complete(ctx context.Context, messages schema.Messages) (string, error)
}
