package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)

	config := go_openai.DefaultConfig("test-token")
	config.BaseURL = server.URL + "/v1"
	api := go_openai.NewClientWithConfig(config)

	return NewClient("", WithAPIClient(api), WithModel("test-model")), server
}

func completionResponse(id string, content string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"object": "chat.completion",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}}]
	}`, id, content)
}

func TestInit_ReturnsNoConversations(t *testing.T) {
	c := NewClient("test-token")

	resp, err := c.Init(context.Background())
	require.NoError(t, err)
	require.Empty(t, resp.Conversations)
	require.Nil(t, resp.Error)
}

func TestCreateNewConversation_MintsLocalID(t *testing.T) {
	c := NewClient("test-token")

	first, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)
	second, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.False(t, first.IsTemporary())
}

func TestSendMessage_Blocking(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionResponse("cmpl-1", "hi there"))
	})
	defer server.Close()

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)

	resp, err := c.SendMessage(context.Background(), conv.ID, "hello", nil)
	require.NoError(t, err)
	require.Equal(t, "cmpl-1", resp.MessageID)
	require.Equal(t, "hi there", resp.Answer)

	// the conversation id is local, the backend never changes it
	require.Equal(t, conv.ID, resp.ConversationID)
}

func TestSendMessage_ReplaysRetainedHistory(t *testing.T) {
	var requests []go_openai.ChatCompletionRequest
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := go_openai.ChatCompletionRequest{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)
		fmt.Fprint(w, completionResponse(fmt.Sprintf("cmpl-%d", len(requests)), "answer"))
	})
	defer server.Close()

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), conv.ID, "first question", nil)
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), conv.ID, "second question", nil)
	require.NoError(t, err)

	require.Len(t, requests, 2)
	require.Len(t, requests[0].Messages, 1)
	require.Equal(t, "test-model", requests[0].Model)

	// the second request carries the first turn plus the new query
	require.Len(t, requests[1].Messages, 3)
	require.Equal(t, "first question", requests[1].Messages[0].Content)
	require.Equal(t, "answer", requests[1].Messages[1].Content)
	require.Equal(t, go_openai.ChatMessageRoleAssistant, requests[1].Messages[1].Role)
	require.Equal(t, "second question", requests[1].Messages[2].Content)
}

func TestSendMessage_FailureRetainsNothing(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"message": "boom"}}`)
	})
	defer server.Close()

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), conv.ID, "hello", nil)
	require.Error(t, err)

	history, err := c.GetConversationHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestSendMessage_Streaming(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"cmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"He\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"id\":\"cmpl-1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"llo\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	defer server.Close()

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)

	var chunks []string
	resp, err := c.SendMessage(context.Background(), conv.ID, "hello", &client.SendOptions{
		Stream: true,
		AfterChunk: func(chunk *client.MessageResponse) {
			chunks = append(chunks, chunk.Answer)
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"He", "Hello"}, chunks)
	require.Equal(t, "Hello", resp.Answer)
	require.Equal(t, "cmpl-1", resp.MessageID)
}

func TestGetConversationHistory_ReturnsCopies(t *testing.T) {
	c, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, completionResponse("cmpl-1", "hi"))
	})
	defer server.Close()

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)
	_, err = c.SendMessage(context.Background(), conv.ID, "hello", nil)
	require.NoError(t, err)

	history, err := c.GetConversationHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	history[0].Answer = "mutated"
	again, err := c.GetConversationHistory(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Equal(t, "hi", again[0].Answer)
}
