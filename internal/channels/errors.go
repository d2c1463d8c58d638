package channels

import (
	"errors"

	"github.com/crystaldolphin/chatrelay/internal/providers"
)

const (
	msgUnavailable  = "⚠️ The AI service is temporarily unavailable. Please try again in a few minutes."
	msgConnectivity = "🌐 Network connection problem. Please try again shortly."
	msgGeneric      = "🤖 Oops! Something went wrong. Please try again shortly."
)

// UserFacingError maps a failed turn to the short, non-technical text sent
// back to the chat. Connectivity is checked first so an exhausted DNS failure
// reads as a network problem.
func UserFacingError(err error) string {
	switch {
	case errors.Is(err, providers.ErrConnectivity):
		return msgConnectivity
	case errors.Is(err, providers.ErrUnavailable):
		return msgUnavailable
	default:
		return msgGeneric
	}
}
