package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed completion call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnectivity
	KindUnavailable
	KindParse
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindUnavailable:
		return "unavailable"
	case KindParse:
		return "parse"
	case KindUpstream:
		return "upstream"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against *Error.
var (
	ErrConnectivity = errors.New("upstream unreachable")
	ErrUnavailable  = errors.New("upstream temporarily unavailable")
	ErrParse        = errors.New("malformed upstream response")
)

// Error is the classified failure returned by Complete.
// Exhausted is set when the retry budget ran out on a retryable failure;
// such an error matches ErrUnavailable whatever its Kind.
type Error struct {
	Kind      ErrorKind
	Attempts  int
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	var sb strings.Builder
	switch {
	case e.Exhausted:
		fmt.Fprintf(&sb, "%s after %d attempts", ErrUnavailable, e.Attempts)
	case e.Kind == KindConnectivity:
		sb.WriteString(ErrConnectivity.Error())
	case e.Kind == KindParse:
		sb.WriteString(ErrParse.Error())
	default:
		fmt.Fprintf(&sb, "completion failed (%s)", e.Kind)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Exhausted || e.Kind == KindUnavailable
	case ErrConnectivity:
		return e.Kind == KindConnectivity
	case ErrParse:
		return e.Kind == KindParse
	}
	return false
}

// StatusError is a non-2xx reply from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Code == 429 {
		return "HTTP 429: rate limit exceeded"
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// KindOf returns the classification of err, or KindUnknown when err was not
// produced by this package.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
