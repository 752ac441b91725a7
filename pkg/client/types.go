package client

import (
	"fmt"
	"net/http"
	"time"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
)

// APIError is the structured error shape backends report: a human-readable
// message plus an HTTP-ish status code.
type APIError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// InitLimitation is a soft degraded-mode signal reported during client
// initialization. It does not prevent the manager from operating.
type InitLimitation struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// InitResponse is the result of AIClient.Init. Error and Limitation are
// mutually informative, not mutually exclusive with a returned error.
type InitResponse struct {
	Conversations []*conversation.Conversation `json:"conversations"`
	Limitation    *InitLimitation              `json:"limitation,omitempty"`
	Error         *APIError                    `json:"error,omitempty"`
}

// MessageResponse carries one answer state from the backend: the final
// response of a send, or one accumulated streaming chunk.
type MessageResponse struct {
	MessageID            string                 `json:"messageId"`
	Answer               string                 `json:"answer"`
	ConversationID       string                 `json:"conversationId"`
	AdditionalAttributes map[string]interface{} `json:"additionalAttributes,omitempty"`
}

// AfterChunkFunc is invoked for every chunk the client delivers. The answer
// it carries is the full accumulated text so far.
type AfterChunkFunc func(*MessageResponse)

// SendOptions tune a single SendMessage call.
type SendOptions struct {
	// Stream requests incremental delivery when the transport supports it.
	Stream bool

	// AfterChunk is always supplied by the state manager. Clients may invoke
	// it once or per chunk.
	AfterChunk AfterChunkFunc

	// RequestPayload holds pass-through fields merged into the outgoing
	// request body.
	RequestPayload map[string]interface{}

	// Headers are added to the outgoing request for HTTP transports.
	Headers http.Header
}

// HistoryEntry is one backend-side turn: the user input and the bot answer
// it produced.
type HistoryEntry struct {
	MessageID            string                 `json:"message_id"`
	Input                string                 `json:"input"`
	Answer               string                 `json:"answer"`
	Date                 time.Time              `json:"date"`
	AdditionalAttributes map[string]interface{} `json:"additional_attributes,omitempty"`
}
