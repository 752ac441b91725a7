package openai

// Package openai adapts the OpenAI chat completions API to the AIClient
// contract. OpenAI has no server-side conversation resource, so conversation
// records and history live inside the client: CreateNewConversation mints an
// identifier, SendMessage replays the retained turns plus the new query, and
// GetConversationHistory returns what has been retained. The conversation id
// therefore never changes between call and response.

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
)

type Client struct {
	api   *go_openai.Client
	model string

	mu      sync.Mutex
	history map[string][]*client.HistoryEntry
}

type Option func(*Client)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithAPIClient injects a pre-configured go-openai client, e.g. one pointed
// at a compatible self-hosted endpoint.
func WithAPIClient(api *go_openai.Client) Option {
	return func(c *Client) {
		c.api = api
	}
}

func NewClient(apiKey string, options ...Option) *Client {
	ret := &Client{
		model:   go_openai.GPT3Dot5Turbo,
		history: map[string][]*client.HistoryEntry{},
	}

	for _, option := range options {
		option(ret)
	}

	if ret.api == nil {
		ret.api = go_openai.NewClient(apiKey)
	}

	return ret
}

var _ client.AIClient = (*Client)(nil)

// Init has nothing to list: conversations only exist client-side.
func (c *Client) Init(ctx context.Context) (*client.InitResponse, error) {
	return &client.InitResponse{Conversations: []*conversation.Conversation{}}, nil
}

func (c *Client) CreateNewConversation(ctx context.Context) (*conversation.Conversation, error) {
	conv := conversation.New(uuid.NewString())

	c.mu.Lock()
	c.history[conv.ID] = []*client.HistoryEntry{}
	c.mu.Unlock()

	return conv, nil
}

func (c *Client) GetConversationHistory(ctx context.Context, conversationID string) ([]*client.HistoryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.history[conversationID]
	ret := make([]*client.HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		copied := *entry
		ret = append(ret, &copied)
	}
	return ret, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, query string, opts *client.SendOptions) (*client.MessageResponse, error) {
	if opts == nil {
		opts = &client.SendOptions{}
	}

	req := go_openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.buildMessages(conversationID, query),
		Stream:   opts.Stream,
	}

	var ret *client.MessageResponse
	var err error
	if opts.Stream {
		ret, err = c.sendStreaming(ctx, conversationID, req, opts.AfterChunk)
	} else {
		ret, err = c.sendBlocking(ctx, conversationID, req, opts.AfterChunk)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history[conversationID] = append(c.history[conversationID], &client.HistoryEntry{
		MessageID: ret.MessageID,
		Input:     query,
		Answer:    ret.Answer,
		Date:      time.Now(),
	})
	c.mu.Unlock()

	return ret, nil
}

func (c *Client) buildMessages(conversationID string, query string) []go_openai.ChatCompletionMessage {
	c.mu.Lock()
	entries := c.history[conversationID]
	messages := make([]go_openai.ChatCompletionMessage, 0, len(entries)*2+1)
	for _, entry := range entries {
		messages = append(messages,
			go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser, Content: entry.Input},
			go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleAssistant, Content: entry.Answer},
		)
	}
	c.mu.Unlock()

	return append(messages, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: query,
	})
}

func (c *Client) sendBlocking(ctx context.Context, conversationID string, req go_openai.ChatCompletionRequest, afterChunk client.AfterChunkFunc) (*client.MessageResponse, error) {
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion failed")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	ret := &client.MessageResponse{
		MessageID:      resp.ID,
		Answer:         resp.Choices[0].Message.Content,
		ConversationID: conversationID,
	}
	if afterChunk != nil {
		afterChunk(ret)
	}
	return ret, nil
}

func (c *Client) sendStreaming(ctx context.Context, conversationID string, req go_openai.ChatCompletionRequest, afterChunk client.AfterChunkFunc) (*client.MessageResponse, error) {
	stream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion stream failed")
	}
	defer stream.Close()

	ret := &client.MessageResponse{ConversationID: conversationID}
	answer := ""
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to receive completion chunk")
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		answer += chunk.Choices[0].Delta.Content
		ret.Answer = answer
		if chunk.ID != "" {
			ret.MessageID = chunk.ID
		}

		if afterChunk != nil {
			afterChunk(&client.MessageResponse{
				MessageID:      ret.MessageID,
				Answer:         ret.Answer,
				ConversationID: conversationID,
			})
		}
	}

	return ret, nil
}
