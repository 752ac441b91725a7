package lightspeed

// Package lightspeed implements the AIClient contract over a JSON HTTP
// gateway with optional SSE streaming. It is one of the heterogeneous
// backends the state manager normalizes; the other reference implementation
// lives in pkg/clients/openai.

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/client"
	"github.com/RedHatInsights/ai-web-clients-sub001/pkg/conversation"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client, e.g. to set timeouts
// or inject a test transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the bearer token attached to every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func NewClient(baseURL string, options ...Option) *Client {
	ret := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

var _ client.AIClient = (*Client)(nil)
var _ client.HealthChecker = (*Client)(nil)
var _ client.ServiceStatusProvider = (*Client)(nil)

func (c *Client) setHeaders(req *http.Request, extra http.Header) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for key, values := range extra {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}

func (c *Client) Init(ctx context.Context) (*client.InitResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/init", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "init request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	payload := initPayload{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode init response")
	}

	conversations := make([]*conversation.Conversation, 0, len(payload.Conversations))
	for i := range payload.Conversations {
		conversations = append(conversations, payload.Conversations[i].toConversation())
	}

	return &client.InitResponse{
		Conversations: conversations,
		Limitation:    payload.Limitation,
		Error:         payload.Error,
	}, nil
}

func (c *Client) CreateNewConversation(ctx context.Context) (*conversation.Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/conversations", nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "create conversation request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	payload := conversationPayload{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode conversation response")
	}

	return payload.toConversation(), nil
}

func (c *Client) GetConversationHistory(ctx context.Context, conversationID string) ([]*client.HistoryEntry, error) {
	url := fmt.Sprintf("%s/v1/conversations/%s/history", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "history request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	var entries []*client.HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "failed to decode history response")
	}

	return entries, nil
}

func (c *Client) SendMessage(ctx context.Context, conversationID string, query string, opts *client.SendOptions) (*client.MessageResponse, error) {
	if opts == nil {
		opts = &client.SendOptions{}
	}

	body := map[string]interface{}{
		"input":  query,
		"stream": opts.Stream,
	}
	for key, value := range opts.RequestPayload {
		body[key] = value
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message request")
	}

	url := fmt.Sprintf("%s/v1/conversations/%s/message", c.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, opts.Headers)
	if opts.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "message request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	if opts.Stream && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return streamMessage(ctx, resp, opts.AfterChunk)
	}

	payload := messagePayload{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode message response")
	}

	ret := &client.MessageResponse{
		MessageID:            payload.MessageID,
		Answer:               payload.Answer,
		ConversationID:       payload.ConversationID,
		AdditionalAttributes: payload.AdditionalAttributes,
	}
	if opts.AfterChunk != nil {
		opts.AfterChunk(ret)
	}
	return ret, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "health check request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) GetServiceStatus(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/status", nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req, nil)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "status request failed")
	}
	defer closeBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", decodeError(resp)
	}

	payload := statusPayload{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errors.Wrap(err, "failed to decode status response")
	}
	return payload.Status, nil
}

// decodeError turns a non-2xx response into a structured APIError when the
// body carries the gateway's {message, status} shape, falling back to the
// raw body otherwise.
func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &client.APIError{Message: resp.Status, Status: resp.StatusCode}
	}

	apiErr := client.APIError{}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		if apiErr.Status == 0 {
			apiErr.Status = resp.StatusCode
		}
		return &apiErr
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = resp.Status
	}
	return &client.APIError{Message: message, Status: resp.StatusCode}
}

func closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close response body")
	}
}
