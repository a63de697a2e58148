// Package conversation holds the ordered transcript of a chat session.
package conversation

import (
	"iter"
	"time"

	"github.com/google/uuid"
)

// Role is the local author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "jarvis"
)

// Wire roles expected by the assistant endpoint.
const (
	WireUser      = "user"
	WireAssistant = "assistant"
)

// Turn is one message in the conversation. Turns are values; once appended
// they are never changed.
type Turn struct {
	ID        string
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Message is a turn projected for transmission to the assistant.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store is an append-only transcript. It is not safe for concurrent use;
// the session controller owns it and touches it only from its event loop.
type Store struct {
	turns []Turn
	now   func() time.Time
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Append adds a turn at the end and returns it.
func (s *Store) Append(role Role, content string) Turn {
	t := Turn{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	s.turns = append(s.turns, t)
	return t
}

// Len returns the number of turns.
func (s *Store) Len() int { return len(s.turns) }

// At returns the turn at index i.
func (s *Store) At(i int) (Turn, bool) {
	if i < 0 || i >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[i], true
}

// Turns returns a copy of the transcript in append order.
func (s *Store) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// All iterates turns in append order.
func (s *Store) All() iter.Seq2[int, Turn] {
	return func(yield func(int, Turn) bool) {
		for i, t := range s.turns {
			if !yield(i, t) {
				return
			}
		}
	}
}

// APIHistory projects the transcript for the assistant endpoint. Turns for
// which isPayload reports true (structured action drafts) are dropped and
// local roles are mapped to wire roles. It is recomputed on every call.
func (s *Store) APIHistory(isPayload func(string) bool) []Message {
	out := make([]Message, 0, len(s.turns))
	for _, t := range s.turns {
		if isPayload != nil && isPayload(t.Content) {
			continue
		}
		out = append(out, Message{Role: wireRole(t.Role), Content: t.Content})
	}
	return out
}

func wireRole(r Role) string {
	if r == RoleAssistant {
		return WireAssistant
	}
	return WireUser
}
