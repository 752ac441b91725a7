package conversation

import (
	"time"

	clone "github.com/huandu/go-clone"
)

// TemporaryID is the sentinel identifier of a conversation created
// client-side before the backend has assigned a real one. It is never sent
// to a backend as a conversation reference; the manager promotes the record
// to the backend-confirmed id first.
const TemporaryID = "__temp_conversation__"

// IsTemporaryID reports whether id is the client-local sentinel.
func IsTemporaryID(id string) bool {
	return id == TemporaryID
}

// Conversation is a named, ordered sequence of messages under a backend or
// temporary identifier. Locked conversations refuse new sends; the manager
// answers them with a canned bot message instead of a network call.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	Locked    bool       `json:"locked"`
	CreatedAt time.Time  `json:"createdAt"`
}

// New creates an empty conversation record under the given id.
func New(id string) *Conversation {
	return &Conversation{
		ID:        id,
		Title:     "",
		Messages:  []*Message{},
		Locked:    false,
		CreatedAt: time.Now(),
	}
}

// NewTemporary creates the client-local placeholder conversation.
func NewTemporary() *Conversation {
	return New(TemporaryID)
}

// IsTemporary reports whether the record still carries the sentinel id.
func (c *Conversation) IsTemporary() bool {
	return c != nil && IsTemporaryID(c.ID)
}

// IsEmpty reports whether the conversation holds no messages yet.
func (c *Conversation) IsEmpty() bool {
	return c == nil || len(c.Messages) == 0
}

// Clone returns a deep copy of the record and all its messages.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	return clone.Clone(c).(*Conversation)
}
