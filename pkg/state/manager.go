package state

// Package state implements the conversation state manager: the composition
// root that owns conversation and message state, arbitrates concurrent send
// attempts, promotes temporary conversations to backend-confirmed ones,
// accumulates streamed partial answers into the in-flight placeholder
// message, and publishes change notifications through the event bus.
//
// The manager is single-session: one active conversation at a time, one
// in-flight send at a time. UI bindings read state through the accessor
// methods and rely on Subscribe to know when to re-read; everything they get
// back is a deep copy, so manager-owned records can never be mutated from
// outside.

import (
	"context"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/events"
)

// Manager defines the surface consumed by UI bindings.
type Manager interface {
	Init(ctx context.Context) error
	IsInitialized() bool
	IsInitializing() bool

	SetActiveConversationID(ctx context.Context, conversationID string)
	GetActiveConversationID() string
	GetActiveConversationMessages() []*conversation.Message
	IsTemporaryConversation() bool

	SendMessage(ctx context.Context, query string, opts *client.SendOptions) (*client.MessageResponse, error)
	GetMessageInProgress() bool

	CreateNewConversation(ctx context.Context, force bool) (*conversation.Conversation, error)
	GetConversations() []*conversation.Conversation

	GetState() *State
	Subscribe(eventType events.EventType, fn events.Callback) func()
	GetClient() client.AIClient
	GetInitLimitation() *client.InitLimitation
}

// State is a deep-copied snapshot of everything the manager owns.
type State struct {
	Conversations        map[string]*conversation.Conversation
	ActiveConversationID string
	MessageInProgress    bool
	Initialized          bool
	Initializing         bool
	InitLimitation       *client.InitLimitation
}
