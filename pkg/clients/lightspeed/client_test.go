package lightspeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
)

func TestInit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/init", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		fmt.Fprint(w, `{
			"conversations": [
				{"conversation_id": "c-1", "title": "first", "locked": false},
				{"conversation_id": "c-2", "title": "second", "locked": true}
			],
			"limitation": {"reason": "quota"}
		}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, WithToken("test-token"))

	resp, err := c.Init(context.Background())
	require.NoError(t, err)
	require.Len(t, resp.Conversations, 2)
	require.Equal(t, "c-1", resp.Conversations[0].ID)
	require.Equal(t, "first", resp.Conversations[0].Title)
	require.True(t, resp.Conversations[1].Locked)
	require.NotNil(t, resp.Conversations[0].Messages)
	require.Equal(t, "quota", resp.Limitation.Reason)
	require.Nil(t, resp.Error)
}

func TestCreateNewConversation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/conversations", r.URL.Path)
		fmt.Fprint(w, `{"conversation_id": "c-9", "title": ""}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	conv, err := c.CreateNewConversation(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c-9", conv.ID)
	require.False(t, conv.IsTemporary())
}

func TestGetConversationHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/conversations/c-1/history", r.URL.Path)
		fmt.Fprint(w, `[
			{"message_id": "m-1", "input": "what is kafka", "answer": "a message broker"}
		]`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	entries, err := c.GetConversationHistory(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "m-1", entries[0].MessageID)
	require.Equal(t, "what is kafka", entries[0].Input)
	require.Equal(t, "a message broker", entries[0].Answer)
}

func TestSendMessage_Blocking(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/conversations/c-1/message", r.URL.Path)

		body := map[string]interface{}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "hello", body["input"])
		require.Equal(t, false, body["stream"])
		require.Equal(t, "openshift", body["topic"])
		require.Equal(t, "custom-value", r.Header.Get("X-Custom"))

		fmt.Fprint(w, `{
			"message_id": "m-1",
			"answer": "hi there",
			"conversation_id": "c-1",
			"additional_attributes": {"sources": "doc-1"}
		}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	var chunks []string
	resp, err := c.SendMessage(context.Background(), "c-1", "hello", &client.SendOptions{
		RequestPayload: map[string]interface{}{"topic": "openshift"},
		Headers:        http.Header{"X-Custom": []string{"custom-value"}},
		AfterChunk: func(chunk *client.MessageResponse) {
			chunks = append(chunks, chunk.Answer)
		},
	})
	require.NoError(t, err)
	require.Equal(t, "m-1", resp.MessageID)
	require.Equal(t, "hi there", resp.Answer)
	require.Equal(t, "c-1", resp.ConversationID)
	require.Equal(t, "doc-1", resp.AdditionalAttributes["sources"])

	// blocking mode still delivers exactly one chunk
	require.Equal(t, []string{"hi there"}, chunks)
}

func TestSendMessage_StreamingAccumulatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"answer\": \"He\", \"conversation_id\": \"c-1\"}\n\n")
		fmt.Fprint(w, "data: {\"answer\": \"llo\", \"message_id\": \"m-1\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	c := NewClient(server.URL)

	var chunks []string
	resp, err := c.SendMessage(context.Background(), "c-1", "hello", &client.SendOptions{
		Stream: true,
		AfterChunk: func(chunk *client.MessageResponse) {
			chunks = append(chunks, chunk.Answer)
		},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"He", "Hello"}, chunks)
	require.Equal(t, "Hello", resp.Answer)
	require.Equal(t, "m-1", resp.MessageID)
	require.Equal(t, "c-1", resp.ConversationID)
}

func TestSendMessage_StreamingFallsBackToJSON(t *testing.T) {
	// a gateway may answer a stream request with a plain JSON body
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"message_id": "m-1", "answer": "hi", "conversation_id": "c-1"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	resp, err := c.SendMessage(context.Background(), "c-1", "hello", &client.SendOptions{Stream: true})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Answer)
}

func TestDecodeError_StructuredBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"message": "service unavailable", "status": 503}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	_, err := c.Init(context.Background())
	require.Error(t, err)

	apiErr := &client.APIError{}
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "service unavailable", apiErr.Message)
	require.Equal(t, 503, apiErr.Status)
}

func TestDecodeError_PlainBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream timeout")
	}))
	defer server.Close()

	c := NewClient(server.URL)

	_, err := c.GetConversationHistory(context.Background(), "c-1")
	require.Error(t, err)

	apiErr := &client.APIError{}
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "upstream timeout", apiErr.Message)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestHealthCheck(t *testing.T) {
	healthy := true
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/health", r.URL.Path)
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL)
	require.NoError(t, c.HealthCheck(context.Background()))

	healthy = false
	require.Error(t, c.HealthCheck(context.Background()))
}

func TestGetServiceStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status", r.URL.Path)
		fmt.Fprint(w, `{"status": "ok"}`)
	}))
	defer server.Close()

	c := NewClient(server.URL)

	status, err := c.GetServiceStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", status)
}
