package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// ErrPersistence wraps every durable-storage failure. Callers log it;
// it never fails a conversational turn.
var ErrPersistence = errors.New("session: persistence failure")

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Backend is the durable-storage collaborator of a Store.
// LoadAll must return an empty map, not an error, when no prior state exists.
type Backend interface {
	LoadAll(ctx context.Context) (map[string]schema.Messages, error)
	SaveAll(ctx context.Context, data map[string]schema.Messages) error
	Close() error
}

// MessageDocument is one stored message in a document-oriented backend.
type MessageDocument struct {
	ID        string
	ChannelID string
	Role      schema.Role
	Content   string
	Timestamp time.Time
}

// DocumentStore is implemented by backends that address individual messages
// rather than whole snapshots.
type DocumentStore interface {
	Backend
	Upsert(ctx context.Context, doc MessageDocument) (MessageDocument, error)
	FindByChannel(ctx context.Context, channelID string) ([]MessageDocument, error)
	DeleteByChannel(ctx context.Context, channelID string) error
	CountByChannel(ctx context.Context, channelID string) (int, error)
}

// ReadChannel returns one channel's stored messages, oldest first. Document
// stores answer from the channel's own rows; other backends load everything.
func ReadChannel(ctx context.Context, b Backend, channelID string) (schema.Messages, error) {
	if docs, ok := b.(DocumentStore); ok {
		found, err := docs.FindByChannel(ctx, channelID)
		if err != nil {
			return nil, persistenceError("find", err)
		}
		msgs := make(schema.Messages, 0, len(found))
		for _, d := range found {
			msgs = append(msgs, schema.Message{Role: d.Role, Content: d.Content, Timestamp: d.Timestamp})
		}
		return msgs, nil
	}

	data, err := b.LoadAll(ctx)
	if err != nil {
		return nil, persistenceError("load", err)
	}
	if msgs, ok := data[channelID]; ok {
		return msgs, nil
	}
	return schema.Messages{}, nil
}

// AppendStored adds one message to a channel's durable history. Document
// stores insert a single row; other backends are rewritten through a Store.
func AppendStored(ctx context.Context, b Backend, channelID string, role schema.Role, content string) (schema.Message, error) {
	if !role.Valid() {
		return schema.Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	if docs, ok := b.(DocumentStore); ok {
		doc, err := docs.Upsert(ctx, MessageDocument{ChannelID: channelID, Role: role, Content: content})
		if err != nil {
			return schema.Message{}, persistenceError("upsert", err)
		}
		return schema.Message{Role: doc.Role, Content: doc.Content, Timestamp: doc.Timestamp}, nil
	}

	s := NewStore(b)
	if err := s.LoadAll(ctx); err != nil {
		return schema.Message{}, err
	}
	msg, err := s.Append(channelID, role, content)
	if err != nil {
		return schema.Message{}, err
	}
	if err := s.SaveAll(ctx); err != nil {
		return schema.Message{}, err
	}
	return msg, nil
}
