package client

import (
	"context"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
)

// AIClient is the collaborator contract the state manager drives. Each chat
// backend (HTTP/SSE gateway, OpenAI, ...) provides its own implementation;
// the manager never deals with wire formats, authentication, or endpoint
// paths itself.
type AIClient interface {
	// Init returns the backend's existing conversations and, optionally, a
	// degraded-mode limitation. A non-nil InitResponse.Error is treated the
	// same as a returned error.
	Init(ctx context.Context) (*InitResponse, error)

	// SendMessage submits a query within an existing conversation. The
	// manager always supplies opts.AfterChunk; the client decides whether to
	// invoke it once (blocking transports) or repeatedly (streaming
	// transports). Streaming clients deliver the accumulated answer on every
	// chunk, not the raw delta.
	SendMessage(ctx context.Context, conversationID string, query string, opts *SendOptions) (*MessageResponse, error)

	// GetConversationHistory returns the backend-side turns of a
	// conversation, oldest first.
	GetConversationHistory(ctx context.Context, conversationID string) ([]*HistoryEntry, error)

	// CreateNewConversation asks the backend for a fresh conversation record.
	CreateNewConversation(ctx context.Context) (*conversation.Conversation, error)
}

// DefaultStreamingHandlerProvider is an optional client capability: a chunk
// handler the manager falls back to when the caller supplies none.
type DefaultStreamingHandlerProvider interface {
	GetDefaultStreamingHandler() AfterChunkFunc
}

// HealthChecker is an optional client capability, consumed opportunistically.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ServiceStatusProvider is an optional client capability, consumed
// opportunistically.
type ServiceStatusProvider interface {
	GetServiceStatus(ctx context.Context) (string, error)
}
