// Package session owns per-channel conversation history: the in-memory
// store with token-budget eviction, and the durable backends it is
// loaded from and flushed to.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ErrInvalidRole is returned by Append for roles other than user/assistant.
var ErrInvalidRole = errors.New("session: invalid message role")

// history is one channel's ordered message list. dead is set once the
// history has been cleared and unlinked from the store; writers that raced
// with the clear must re-resolve the channel.
type history struct {
	mu       sync.Mutex
	messages schema.Messages
	dead     bool
}

// Store maps channel ids to their histories. Mutations are serialized per
// channel; different channels never contend beyond the map lookup.
type Store struct {
	backend Backend

	mu        sync.RWMutex
	histories map[string]*history

	version atomic.Uint64 // bumped on every mutation
}

// NewStore creates an empty Store. backend may be nil for a memory-only store.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:   backend,
		histories: make(map[string]*history),
	}
}

// Append adds a message at the tail of the channel's history, creating the
// history on first use, and returns the stored message.
func (s *Store) Append(channelID string, role schema.Role, content string) (schema.Message, error) {
	if !role.Valid() {
		return schema.Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	msg := schema.Message{Role: role, Content: content, Timestamp: time.Now()}

	for {
		h := s.getOrCreate(channelID)
		h.mu.Lock()
		if h.dead {
			h.mu.Unlock()
			continue
		}
		h.messages = append(h.messages, msg)
		h.mu.Unlock()
		s.version.Add(1)
		return msg, nil
	}
}

// History returns a copy of the channel's messages, oldest first.
// Unknown channels yield an empty, non-nil slice.
func (s *Store) History(channelID string) schema.Messages {
	h := s.get(channelID)
	if h == nil {
		return schema.Messages{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.messages.Clone()
}

// TrimToBudget evicts the oldest messages while the estimated token total
// exceeds maxTokens and more than one message remains. The newest message is
// always kept, even when it alone is over budget. It returns the number of
// messages removed.
func (s *Store) TrimToBudget(channelID string, maxTokens int) int {
	h := s.get(channelID)
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	total := EstimateHistory(h.messages)

	removed := 0
	for total > maxTokens && len(h.messages)-removed > 1 {
		total -= EstimateTokens(h.messages[removed].Content)
		removed++
	}
	if removed == 0 {
		return 0
	}

	kept := make(schema.Messages, len(h.messages)-removed)
	copy(kept, h.messages[removed:])
	h.messages = kept
	s.version.Add(1)

	slog.Debug("session: trimmed history", "channel", channelID, "removed", removed, "tokens", total)
	return removed
}

// Clear removes the channel's history entirely.
func (s *Store) Clear(channelID string) {
	s.mu.Lock()
	h, ok := s.histories[channelID]
	delete(s.histories, channelID)
	s.mu.Unlock()
	if !ok {
		return
	}

	h.mu.Lock()
	h.dead = true
	h.messages = nil
	h.mu.Unlock()
	s.version.Add(1)
}

// Count returns the number of stored messages for the channel.
func (s *Store) Count(channelID string) int {
	h := s.get(channelID)
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Channels returns the ids of all channels with at least one message, sorted.
func (s *Store) Channels() []string {
	snap := s.Snapshot()
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot copies every non-empty history.
func (s *Store) Snapshot() map[string]schema.Messages {
	s.mu.RLock()
	entries := make(map[string]*history, len(s.histories))
	for id, h := range s.histories {
		entries[id] = h
	}
	s.mu.RUnlock()

	out := make(map[string]schema.Messages, len(entries))
	for id, h := range entries {
		h.mu.Lock()
		if len(h.messages) > 0 {
			out[id] = h.messages.Clone()
		}
		h.mu.Unlock()
	}
	return out
}

// Restore replaces the in-memory state with data.
func (s *Store) Restore(data map[string]schema.Messages) {
	fresh := make(map[string]*history, len(data))
	for id, msgs := range data {
		if len(msgs) == 0 {
			continue
		}
		fresh[id] = &history{messages: msgs.Clone()}
	}

	s.mu.Lock()
	old := s.histories
	s.histories = fresh
	s.mu.Unlock()

	for _, h := range old {
		h.mu.Lock()
		h.dead = true
		h.mu.Unlock()
	}
	s.version.Add(1)
}

// Version is a counter that changes whenever the store is mutated.
func (s *Store) Version() uint64 { return s.version.Load() }

// LoadAll replaces the in-memory state with the backend's contents.
// A missing backend or first-run absence of data is not an error.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	data, err := s.backend.LoadAll(ctx)
	if err != nil {
		return persistenceError("load", err)
	}
	s.Restore(data)
	slog.Info("session: history loaded", "channels", len(data))
	return nil
}

// SaveAll writes a snapshot of every history to the backend.
func (s *Store) SaveAll(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}
	snap := s.Snapshot()
	if err := s.backend.SaveAll(ctx, snap); err != nil {
		return persistenceError("save", err)
	}
	slog.Debug("session: history saved", "channels", len(snap))
	return nil
}

func (s *Store) get(channelID string) *history {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.histories[channelID]
}

func (s *Store) getOrCreate(channelID string) *history {
	if h := s.get(channelID); h != nil {
		return h
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histories[channelID]; ok {
		return h
	}
	h := &history{messages: schema.Messages{}}
	s.histories[channelID] = h
	slog.Info("session: new history", "channel", channelID)
	return h
}
