package session

import (
	"context"
	"errors"
	"testing"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func TestAppendAndReadChannel_SQLite(t *testing.T) {
	b := newTestSQLite(t)
	ctx := context.Background()

	if _, err := AppendStored(ctx, b, "c1", schema.RoleUser, "hi"); err != nil {
		t.Fatalf("AppendStored: %v", err)
	}
	if _, err := AppendStored(ctx, b, "c1", schema.RoleAssistant, "hello"); err != nil {
		t.Fatalf("AppendStored: %v", err)
	}
	AppendStored(ctx, b, "c2", schema.RoleUser, "other")

	if n, _ := b.CountByChannel(ctx, "c1"); n != 2 {
		t.Errorf("CountByChannel = %d, want 2", n)
	}
	got, err := ReadChannel(ctx, b, "c1")
	if err != nil {
		t.Fatalf("ReadChannel: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Errorf("ReadChannel = %+v", got)
	}
	if got[1].Role != schema.RoleAssistant || got[1].Timestamp.IsZero() {
		t.Errorf("second message = %+v", got[1])
	}
}

func TestAppendAndReadChannel_File(t *testing.T) {
	b, _ := newTestFileBackend(t, false, 0)
	ctx := context.Background()

	if _, err := AppendStored(ctx, b, "c1", schema.RoleUser, "hi"); err != nil {
		t.Fatalf("AppendStored: %v", err)
	}
	if _, err := AppendStored(ctx, b, "c1", schema.RoleAssistant, "hello"); err != nil {
		t.Fatalf("AppendStored: %v", err)
	}

	got, err := ReadChannel(ctx, b, "c1")
	if err != nil {
		t.Fatalf("ReadChannel: %v", err)
	}
	if len(got) != 2 || got[0].Content != "hi" || got[1].Content != "hello" {
		t.Errorf("ReadChannel = %+v", got)
	}
}

func TestReadChannel_Unknown(t *testing.T) {
	b := newTestSQLite(t)
	got, err := ReadChannel(context.Background(), b, "missing")
	if err != nil {
		t.Fatalf("ReadChannel: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadChannel = %#v, want empty non-nil", got)
	}
}

func TestAppendStored_InvalidRole(t *testing.T) {
	b := newTestSQLite(t)
	if _, err := AppendStored(context.Background(), b, "c1", schema.Role("system"), "x"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("err = %v, want ErrInvalidRole", err)
	}
}
