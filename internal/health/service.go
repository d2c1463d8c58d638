// Package health runs a periodic network reachability probe against the
// hosts the gateway depends on and logs when reachability changes.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// Resolver looks up a host's addresses.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Dialer opens a network connection.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// HostStatus is the result of the latest probe of one host.
type HostStatus struct {
	Host      string
	Reachable bool
	Err       string
	Latency   time.Duration
	CheckedAt time.Time
}

// Service probes each host with a DNS lookup followed by a TCP dial to port 443.
type Service struct {
	hosts    []string
	interval time.Duration
	timeout  time.Duration
	resolver Resolver
	dialer   Dialer

	mu     sync.RWMutex
	status map[string]HostStatus
}

// NewService creates a Service. interval defaults to 5 minutes and timeout
// to 5 seconds if zero.
func NewService(hosts []string, interval, timeout time.Duration) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		hosts:    hosts,
		interval: interval,
		timeout:  timeout,
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{},
		status:   make(map[string]HostStatus),
	}
}

// WithNetwork replaces the resolver and dialer. Used by tests.
func (s *Service) WithNetwork(r Resolver, d Dialer) *Service {
	s.resolver = r
	s.dialer = d
	return s
}

// Start probes once immediately and then every interval until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	c := robfigcron.New(robfigcron.WithChain(robfigcron.SkipIfStillRunning(robfigcron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		_ = s.CheckAll(ctx)
	}); err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}

	slog.Info("health: started", "interval", s.interval, "hosts", s.hosts)
	_ = s.CheckAll(ctx)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("health: stopped")
	return ctx.Err()
}

// CheckAll probes every host and records the results.
// It returns an error joining the failures of unreachable hosts.
func (s *Service) CheckAll(ctx context.Context) error {
	var errs []error
	for _, host := range s.hosts {
		st := s.check(ctx, host)
		s.record(st)
		if !st.Reachable {
			errs = append(errs, fmt.Errorf("%s: %s", host, st.Err))
		}
	}
	return errors.Join(errs...)
}

// Status returns the latest result for every probed host, in configured order.
func (s *Service) Status() []HostStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HostStatus, 0, len(s.status))
	for _, host := range s.hosts {
		if st, ok := s.status[host]; ok {
			out = append(out, st)
		}
	}
	return out
}

func (s *Service) check(ctx context.Context, host string) HostStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	st := HostStatus{Host: host, CheckedAt: time.Now()}
	start := time.Now()

	if _, err := s.resolver.LookupHost(ctx, host); err != nil {
		st.Err = "dns: " + err.Error()
		return st
	}
	conn, err := s.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		st.Err = "dial: " + err.Error()
		return st
	}
	_ = conn.Close()

	st.Reachable = true
	st.Latency = time.Since(start)
	return st
}

func (s *Service) record(st HostStatus) {
	s.mu.Lock()
	prev, seen := s.status[st.Host]
	s.status[st.Host] = st
	s.mu.Unlock()

	switch {
	case !st.Reachable && (!seen || prev.Reachable):
		slog.Warn("health: host unreachable", "host", st.Host, "err", st.Err)
	case st.Reachable && seen && !prev.Reachable:
		slog.Info("health: host reachable again", "host", st.Host, "latency", st.Latency)
	case st.Reachable:
		slog.Debug("health: host reachable", "host", st.Host, "latency", st.Latency)
	}
}
