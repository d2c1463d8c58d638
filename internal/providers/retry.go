package providers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// RetryState is a step in the lifecycle of one logical call.
type RetryState int

const (
	StateIdle RetryState = iota
	StateAttempting
	StateRetrying
	StateSucceeded
	StateExhausted
	StateFailed // non-retryable failure
)

func (s RetryState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	}
	return "invalid"
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// RetryPolicy retries transient failures with exponential backoff:
// the wait after attempt i (0-based) is BaseDelay * 2^i.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Observe, if set, is called on every state transition.
	Observe func(state RetryState, attempt int)
}

// DefaultRetryPolicy returns 3 attempts starting at a 1s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: defaultMaxAttempts, BaseDelay: defaultBaseDelay}
}

// Delay returns the backoff before the retry that follows attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	return base << uint(attempt)
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Every failure is returned as *Error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p.observe(StateIdle, 0)
	limit := p.maxAttempts()

	for attempt := 0; ; attempt++ {
		p.observe(StateAttempting, attempt)
		err := fn(ctx)
		if err == nil {
			p.observe(StateSucceeded, attempt)
			return nil
		}

		kind, retryable := Classify(err)
		if !retryable || ctx.Err() != nil {
			p.observe(StateFailed, attempt)
			return asError(err, kind, attempt+1, false)
		}
		if attempt+1 >= limit {
			p.observe(StateExhausted, attempt)
			slog.Error("provider: retries exhausted", "attempts", attempt+1, "kind", kind, "err", err)
			return asError(err, kind, attempt+1, true)
		}

		delay := p.Delay(attempt)
		p.observe(StateRetrying, attempt)
		slog.Warn("provider: retrying completion", "attempt", attempt+2, "delay", delay, "err", err)
		if serr := p.sleep(ctx, delay); serr != nil {
			p.observe(StateFailed, attempt)
			return asError(err, kind, attempt+1, false)
		}
	}
}

func (p RetryPolicy) observe(s RetryState, attempt int) {
	if p.Observe != nil {
		p.Observe(s, attempt)
	}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func asError(err error, kind ErrorKind, attempts int, exhausted bool) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		out := *pe
		out.Attempts = attempts
		out.Exhausted = out.Exhausted || exhausted
		return &out
	}
	return &Error{Kind: kind, Attempts: attempts, Exhausted: exhausted, Err: err}
}

// Classify maps a transport or upstream failure to its kind and reports
// whether it is worth retrying. Retryable: name-resolution failures, refused
// connections, unreachable hosts, timeouts, and 429/502/503/504 replies.
func Classify(err error) (ErrorKind, bool) {
	if err == nil {
		return KindUnknown, false
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, false
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusTooManyRequests, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return KindUnavailable, true
		}
		return KindUpstream, false
	}

	if errors.Is(err, context.Canceled) {
		return KindUnknown, false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnectivity, true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return KindConnectivity, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable, true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindUnavailable, true
	}

	// Some resolvers and proxies only surface the condition in the text.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such host"),
		strings.Contains(msg, "failed to resolve"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no route to host"):
		return KindConnectivity, true
	case strings.Contains(msg, "timeout"):
		return KindUnavailable, true
	}
	return KindUnknown, false
}
