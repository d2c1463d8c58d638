package health

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeNet struct {
	mu      sync.Mutex
	dnsFail map[string]bool
	tcpFail map[string]bool
	dialed  []string
}

func (f *fakeNet) LookupHost(_ context.Context, host string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dnsFail[host] {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return []string{"192.0.2.1"}, nil
}

func (f *fakeNet) DialContext(_ context.Context, _, address string) (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = append(f.dialed, address)
	host, _, _ := net.SplitHostPort(address)
	if f.tcpFail[host] {
		return nil, errors.New("connection refused")
	}
	client, server := net.Pipe()
	server.Close()
	return client, nil
}

func (f *fakeNet) set(dns, tcp map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dnsFail, f.tcpFail = dns, tcp
}

func TestCheckAll_ReportsPerHost(t *testing.T) {
	fn := &fakeNet{
		dnsFail: map[string]bool{"bad-dns.example": true},
		tcpFail: map[string]bool{"bad-tcp.example": true},
	}
	s := NewService([]string{"ok.example", "bad-dns.example", "bad-tcp.example"}, time.Minute, time.Second).WithNetwork(fn, fn)

	err := s.CheckAll(context.Background())
	if err == nil {
		t.Fatal("CheckAll: want error for unreachable hosts")
	}

	got := s.Status()
	if len(got) != 3 {
		t.Fatalf("Status len = %d, want 3", len(got))
	}
	if !got[0].Reachable || got[0].Host != "ok.example" {
		t.Errorf("status[0] = %+v", got[0])
	}
	if got[1].Reachable || !strings.HasPrefix(got[1].Err, "dns:") {
		t.Errorf("status[1] = %+v, want dns failure", got[1])
	}
	if got[2].Reachable || !strings.HasPrefix(got[2].Err, "dial:") {
		t.Errorf("status[2] = %+v, want dial failure", got[2])
	}

	for _, addr := range fn.dialed {
		if addr == "bad-dns.example:443" {
			t.Error("dialed a host whose lookup failed")
		}
	}
}

func TestCheckAll_Recovery(t *testing.T) {
	fn := &fakeNet{tcpFail: map[string]bool{"api.example": true}}
	s := NewService([]string{"api.example"}, time.Minute, time.Second).WithNetwork(fn, fn)

	if err := s.CheckAll(context.Background()); err == nil {
		t.Fatal("first check: want error")
	}
	fn.set(nil, nil)
	if err := s.CheckAll(context.Background()); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if st := s.Status(); !st[0].Reachable || st[0].Err != "" {
		t.Errorf("status after recovery = %+v", st[0])
	}
}

func TestStart_ProbesImmediatelyAndStops(t *testing.T) {
	fn := &fakeNet{}
	s := NewService([]string{"api.example"}, time.Hour, time.Second).WithNetwork(fn, fn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Status()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(s.Status()) != 1 {
		t.Fatal("no probe ran at start")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
