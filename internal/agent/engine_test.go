package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/session"
)

type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	seen  []schema.Messages
}

func (s *stubCompleter) Complete(_ context.Context, msgs schema.Messages) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.seen = append(s.seen, msgs.Clone())
	return s.reply, s.err
}

func (s *stubCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestHandleTurn_EmptyInputIsNoop(t *testing.T) {
	store := session.NewStore(nil)
	c := &stubCompleter{reply: "unused"}
	e := NewEngine(store, c, 1000)

	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := e.HandleTurn(context.Background(), "c1", in); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("HandleTurn(%q) err = %v, want ErrEmptyInput", in, err)
		}
	}
	if c.callCount() != 0 {
		t.Errorf("completer called %d times, want 0", c.callCount())
	}
	if n := store.Count("c1"); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestHandleTurn_RecordsBothSides(t *testing.T) {
	store := session.NewStore(nil)
	c := &stubCompleter{reply: "hello there"}
	e := NewEngine(store, c, 1000)

	reply, err := e.HandleTurn(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}

	got := store.History("c1")
	if len(got) != 2 {
		t.Fatalf("history len = %d, want 2", len(got))
	}
	if got[0].Role != schema.RoleUser || got[0].Content != "hi" {
		t.Errorf("history[0] = %+v", got[0])
	}
	if got[1].Role != schema.RoleAssistant || got[1].Content != "hello there" {
		t.Errorf("history[1] = %+v", got[1])
	}

	if len(c.seen) != 1 || len(c.seen[0]) != 1 || c.seen[0][0].Content != "hi" {
		t.Errorf("completer saw %+v, want just the user message", c.seen)
	}
}

func TestHandleTurn_FailureKeepsUserMessage(t *testing.T) {
	store := session.NewStore(nil)
	upstream := &providers.Error{Kind: providers.KindUnavailable, Attempts: 3, Exhausted: true}
	c := &stubCompleter{err: upstream}
	e := NewEngine(store, c, 1000)

	_, err := e.HandleTurn(context.Background(), "c1", "hi")
	if !errors.Is(err, providers.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	got := store.History("c1")
	if len(got) != 1 || got[0].Role != schema.RoleUser {
		t.Errorf("history = %+v, want only the user message", got)
	}
}

func TestHandleTurn_BlankReplyBecomesPlaceholder(t *testing.T) {
	store := session.NewStore(nil)
	c := &stubCompleter{reply: "<think>pondering</think>  "}
	e := NewEngine(store, c, 1000)

	reply, err := e.HandleTurn(context.Background(), "c1", "hi")
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != providers.NoResponseText {
		t.Errorf("reply = %q, want %q", reply, providers.NoResponseText)
	}
	if last, _ := store.History("c1").Last(); last.Content != providers.NoResponseText {
		t.Errorf("stored reply = %q", last.Content)
	}
}

func TestHandleTurn_TrimsBeforeSending(t *testing.T) {
	store := session.NewStore(nil)
	// 400 characters is 100 tokens; with a 150 token budget only one old
	// message and the new one fit.
	old := strings.Repeat("a", 400)
	for i := 0; i < 3; i++ {
		store.Append("c1", schema.RoleUser, old)
	}
	c := &stubCompleter{reply: "ok"}
	e := NewEngine(store, c, 150)

	if _, err := e.HandleTurn(context.Background(), "c1", "hi"); err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	sent := c.seen[0]
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[1].Content != "hi" {
		t.Errorf("newest sent message = %q, want hi", sent[1].Content)
	}
	if session.EstimateHistory(sent) > 150 {
		t.Errorf("sent history over budget: %d tokens", session.EstimateHistory(sent))
	}
}

func TestHandleTurn_ChannelsAreIndependent(t *testing.T) {
	store := session.NewStore(nil)
	e := NewEngine(store, &stubCompleter{reply: "r"}, 1000)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := e.HandleTurn(context.Background(), id, "msg"); err != nil {
					t.Errorf("HandleTurn(%s): %v", id, err)
				}
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"a", "b", "c", "d"} {
		if n := store.Count(id); n != 20 {
			t.Errorf("Count(%s) = %d, want 20", id, n)
		}
	}
}
