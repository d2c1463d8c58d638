package schema

import (
	"fmt"
	"time"
)

// Role identifies who authored a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two conversation roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParseRole converts a stored role string back into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Message is one immutable entry in a channel's history.
// Timestamp is zero for messages restored from stores that never recorded one.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: time.Now()}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, Timestamp: time.Now()}
}

// Messages is an ordered history, oldest first.
type Messages []Message

// Clone returns a copy with an independent backing array.
func (m Messages) Clone() Messages {
	out := make(Messages, len(m))
	copy(out, m)
	return out
}

// Last returns the newest message, or false when m is empty.
func (m Messages) Last() (Message, bool) {
	if len(m) == 0 {
		return Message{}, false
	}
	return m[len(m)-1], true
}
