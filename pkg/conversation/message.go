package conversation

// Package conversation holds the data model shared by the state manager and
// the AI client collaborators: messages, conversation records, and the
// temporary-conversation sentinel.
//
// Records handed out by the state manager are deep copies; everything in this
// package is otherwise plain data with no synchronization of its own. The
// manager owns all mutation.

import (
	"time"

	"github.com/google/uuid"
	clone "github.com/huandu/go-clone"
)

// Role distinguishes the two sides of an exchange.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is a single entry in a conversation. Bot messages start out as
// empty placeholders and are mutated in place while streaming chunks arrive,
// then finalized from the resolved client response.
type Message struct {
	ID                   string                 `json:"id"`
	Answer               string                 `json:"answer"`
	Role                 Role                   `json:"role"`
	AdditionalAttributes map[string]interface{} `json:"additionalAttributes,omitempty"`
	Date                 time.Time              `json:"date"`
}

type MessageOption func(*Message)

func WithID(id string) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithAnswer(answer string) MessageOption {
	return func(m *Message) {
		m.Answer = answer
	}
}

func WithAdditionalAttributes(attributes map[string]interface{}) MessageOption {
	return func(m *Message) {
		m.AdditionalAttributes = attributes
	}
}

func WithDate(date time.Time) MessageOption {
	return func(m *Message) {
		m.Date = date
	}
}

func NewMessage(role Role, options ...MessageOption) *Message {
	ret := &Message{
		ID:   uuid.NewString(),
		Role: role,
		Date: time.Now(),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

// NewUserMessage creates a user-role message carrying the submitted query.
func NewUserMessage(query string, options ...MessageOption) *Message {
	return NewMessage(RoleUser, append([]MessageOption{WithAnswer(query)}, options...)...)
}

// NewBotMessage creates a bot-role message. Without options it is the empty
// placeholder appended before a client call starts.
func NewBotMessage(options ...MessageOption) *Message {
	return NewMessage(RoleBot, options...)
}

// Clone returns a deep copy, including additional attributes.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	return clone.Clone(m).(*Message)
}
