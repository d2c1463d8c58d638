package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ─── EstimateTokens ────────────────────────────────────────────────────────

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":          0,
		"abc":       0,
		"abcd":      1,
		"abcdefghi": 2,
		"héllo":     1, // five characters, not six bytes
	}
	for text, want := range cases {
		if got := EstimateTokens(text); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

// ─── Append / History ──────────────────────────────────────────────────────

func TestAppend_CreatesHistoryLazily(t *testing.T) {
	s := NewStore(nil)
	if got := s.History("c1"); len(got) != 0 || got == nil {
		t.Fatalf("expected empty non-nil history, got %v", got)
	}

	msg, err := s.Append("c1", schema.RoleUser, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Role != schema.RoleUser || msg.Content != "hi" || msg.Timestamp.IsZero() {
		t.Errorf("unexpected stored message: %+v", msg)
	}

	h := s.History("c1")
	last, ok := h.Last()
	if !ok || last != msg {
		t.Errorf("history should end with appended message, got %+v", h)
	}
	if s.Count("c1") != 1 {
		t.Errorf("expected count 1, got %d", s.Count("c1"))
	}
}

func TestAppend_InvalidRole(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Append("c1", schema.Role("system"), "x")
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if s.Count("c1") != 0 {
		t.Error("invalid append must not mutate the store")
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	s := NewStore(nil)
	s.Append("c1", schema.RoleUser, "original")
	h := s.History("c1")
	h[0].Content = "mutated"
	if s.History("c1")[0].Content != "original" {
		t.Error("History must not expose internal storage")
	}
}

func TestAppend_ConcurrentChannels(t *testing.T) {
	s := NewStore(nil)
	const channels, perChannel = 8, 200

	var wg sync.WaitGroup
	for c := 0; c < channels; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", c)
			for i := 0; i < perChannel; i++ {
				content := fmt.Sprintf("%s-%d", id, i)
				msg, err := s.Append(id, schema.RoleUser, content)
				if err != nil {
					t.Errorf("append: %v", err)
					return
				}
				last, _ := s.History(id).Last()
				if last != msg {
					t.Errorf("%s: history does not end with own append", id)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	for c := 0; c < channels; c++ {
		id := fmt.Sprintf("c%d", c)
		h := s.History(id)
		if len(h) != perChannel {
			t.Fatalf("%s: expected %d messages, got %d", id, perChannel, len(h))
		}
		for i, m := range h {
			if want := fmt.Sprintf("%s-%d", id, i); m.Content != want {
				t.Fatalf("%s: message %d = %q, want %q", id, i, m.Content, want)
			}
		}
	}
}

// ─── TrimToBudget ──────────────────────────────────────────────────────────

func TestTrimToBudget_RemovesOldestFirst(t *testing.T) {
	s := NewStore(nil)
	for i := 0; i < 5; i++ {
		s.Append("c1", schema.RoleUser, strings.Repeat(fmt.Sprint(i), 40)) // 10 tokens each
	}

	removed := s.TrimToBudget("c1", 30)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	h := s.History("c1")
	if len(h) != 3 || h[0].Content[0] != '2' || h[2].Content[0] != '4' {
		t.Errorf("unexpected remaining history: %v", h)
	}
	if EstimateHistory(h) > 30 {
		t.Errorf("budget exceeded after trim: %d", EstimateHistory(h))
	}
}

func TestTrimToBudget_UnderBudgetNoop(t *testing.T) {
	s := NewStore(nil)
	s.Append("c1", schema.RoleUser, "short")
	v := s.Version()
	if removed := s.TrimToBudget("c1", 100); removed != 0 {
		t.Errorf("expected 0 removed, got %d", removed)
	}
	if s.Version() != v {
		t.Error("a no-op trim must not mark the store dirty")
	}
}

func TestTrimToBudget_KeepsOversizedNewest(t *testing.T) {
	s := NewStore(nil)
	s.Append("c1", schema.RoleUser, "old")
	s.Append("c1", schema.RoleAssistant, "older reply")
	big := strings.Repeat("x", 4000) // 1000 tokens
	s.Append("c1", schema.RoleUser, big)

	removed := s.TrimToBudget("c1", 10)
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	h := s.History("c1")
	if len(h) != 1 || h[0].Content != big {
		t.Errorf("newest message must survive alone, got %d messages", len(h))
	}
}

func TestTrimToBudget_InvariantHolds(t *testing.T) {
	sizes := []int{0, 3, 17, 400, 41, 9, 1200, 88, 5, 60}
	for budget := 0; budget <= 400; budget += 25 {
		s := NewStore(nil)
		for i, n := range sizes {
			s.Append("c", schema.RoleUser, strings.Repeat("a", n*4+i%4))
		}
		newest, _ := s.History("c").Last()

		s.TrimToBudget("c", budget)

		h := s.History("c")
		if len(h) > 1 && EstimateHistory(h) > budget {
			t.Errorf("budget %d: %d tokens remain in %d messages", budget, EstimateHistory(h), len(h))
		}
		if last, _ := h.Last(); last != newest {
			t.Errorf("budget %d: newest message was evicted", budget)
		}
	}
}

func TestTrimToBudget_UnknownChannel(t *testing.T) {
	s := NewStore(nil)
	if removed := s.TrimToBudget("nope", 0); removed != 0 {
		t.Errorf("expected 0, got %d", removed)
	}
}

// ─── Clear ─────────────────────────────────────────────────────────────────

func TestClear(t *testing.T) {
	s := NewStore(nil)
	s.Append("c1", schema.RoleUser, "a")
	s.Append("c2", schema.RoleUser, "b")

	s.Clear("c1")

	if s.Count("c1") != 0 || len(s.History("c1")) != 0 {
		t.Error("expected c1 cleared")
	}
	if s.Count("c2") != 1 {
		t.Error("clear must not affect other channels")
	}

	// A later append recreates the history.
	s.Append("c1", schema.RoleAssistant, "late reply")
	if s.Count("c1") != 1 {
		t.Errorf("expected recreated history with 1 message, got %d", s.Count("c1"))
	}
}

func TestClear_ConcurrentWithAppend(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.Append("c1", schema.RoleUser, "x")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Clear("c1")
		}
	}()
	wg.Wait()

	// Whatever survived the last clear must be fully visible and consistent.
	if n := s.Count("c1"); n != len(s.History("c1")) {
		t.Errorf("count %d disagrees with history length", n)
	}
}

// ─── Snapshot / LoadAll / SaveAll ──────────────────────────────────────────

type memBackend struct {
	data    map[string]schema.Messages
	loadErr error
	saveErr error
	saves   int
}

func (m *memBackend) LoadAll(context.Context) (map[string]schema.Messages, error) {
	return m.data, m.loadErr
}

func (m *memBackend) SaveAll(_ context.Context, data map[string]schema.Messages) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data = data
	return nil
}

func (m *memBackend) Close() error { return nil }

func TestLoadAll_RestoresHistories(t *testing.T) {
	b := &memBackend{data: map[string]schema.Messages{
		"c1": {{Role: schema.RoleUser, Content: "hi"}, {Role: schema.RoleAssistant, Content: "hello"}},
		"c2": {},
	}}
	s := NewStore(b)
	s.Append("stale", schema.RoleUser, "gone after load")

	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Count("c1") != 2 || s.Count("stale") != 0 {
		t.Errorf("unexpected state after load: c1=%d stale=%d", s.Count("c1"), s.Count("stale"))
	}
	if got := s.Channels(); len(got) != 1 || got[0] != "c1" {
		t.Errorf("empty histories must not be listed, got %v", got)
	}
}

func TestLoadAll_FailureKeepsMemory(t *testing.T) {
	b := &memBackend{loadErr: errors.New("disk on fire")}
	s := NewStore(b)
	s.Append("c1", schema.RoleUser, "kept")

	err := s.LoadAll(context.Background())
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if s.Count("c1") != 1 {
		t.Error("failed load must leave in-memory state intact")
	}
}

func TestSaveAll_SnapshotsStore(t *testing.T) {
	b := &memBackend{}
	s := NewStore(b)
	s.Append("c1", schema.RoleUser, "hi")
	s.Append("c2", schema.RoleUser, "yo")
	s.Clear("c2")

	if err := s.SaveAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.data) != 1 || len(b.data["c1"]) != 1 {
		t.Errorf("unexpected saved data: %v", b.data)
	}
}

func TestSaveAll_NilBackend(t *testing.T) {
	s := NewStore(nil)
	s.Append("c1", schema.RoleUser, "hi")
	if err := s.SaveAll(context.Background()); err != nil {
		t.Errorf("memory-only store should not fail: %v", err)
	}
	if err := s.LoadAll(context.Background()); err != nil {
		t.Errorf("memory-only store should not fail: %v", err)
	}
}
