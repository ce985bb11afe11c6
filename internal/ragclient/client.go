package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"zufan/internal/models"
)

// Client talks to the RAG backend. The chat endpoint answers with a
// plain chunked text stream (no event framing); everything else on the
// backend is owned by adminclient.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient builds a client for the given base URL. There is no
// request timeout: a reply streams for as long as the backend keeps
// talking, and a hung backend stalls the conversation until the
// transport itself gives up.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{},
	}
}

// ChatPayload is the chat request: the full prior history, oldest
// first, plus identifying context.
type ChatPayload struct {
	Messages  []models.Message
	SessionID string
	UserID    string
}

type wireMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type wirePayload struct {
	Messages  []wireMessage `json:"messages"`
	SessionID string        `json:"sessionId"`
	UserID    string        `json:"userId,omitempty"`
}

// ChatStream posts the history to the backend and hands back the reply
// as a stream of text fragments. A non-2xx status or unreadable body
// is a transport error; it is surfaced, never retried.
func (c *Client) ChatStream(ctx context.Context, payload ChatPayload) (*Stream, error) {
	wire := wirePayload{
		Messages:  make([]wireMessage, 0, len(payload.Messages)),
		SessionID: payload.SessionID,
		UserID:    payload.UserID,
	}
	for _, m := range payload.Messages {
		wire.Messages = append(wire.Messages, wireMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode chat payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("chat request failed: status %d", resp.StatusCode)
	}
	return newStream(resp.Body), nil
}
