package lightspeed

import (
	"time"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
)

// conversationPayload is the gateway's conversation record shape.
type conversationPayload struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Locked         bool      `json:"locked"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p *conversationPayload) toConversation() *conversation.Conversation {
	return &conversation.Conversation{
		ID:        p.ConversationID,
		Title:     p.Title,
		Locked:    p.Locked,
		CreatedAt: p.CreatedAt,
		Messages:  []*conversation.Message{},
	}
}

type initPayload struct {
	Conversations []conversationPayload  `json:"conversations"`
	Limitation    *client.InitLimitation `json:"limitation,omitempty"`
	Error         *client.APIError       `json:"error,omitempty"`
}

// messagePayload is both the blocking response body and the per-event SSE
// data shape. In streaming mode Answer carries one token; the client
// accumulates before handing chunks to the caller.
type messagePayload struct {
	MessageID            string                 `json:"message_id"`
	Answer               string                 `json:"answer"`
	ConversationID       string                 `json:"conversation_id"`
	AdditionalAttributes map[string]interface{} `json:"additional_attributes,omitempty"`
}

type statusPayload struct {
	Status string `json:"status"`
}
