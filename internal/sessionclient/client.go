// Package sessionclient talks to the session service's /api/chat
// endpoints on behalf of an authenticated user.
package sessionclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"zufan/internal/models"
)

// Client is a thin typed wrapper over the session service HTTP API.
type Client struct {
	http *resty.Client
}

func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(15 * time.Second)
	return &Client{http: c}
}

type errorBody struct {
	Error string `json:"error"`
}

func apiError(op string, resp *resty.Response) error {
	body, _ := resp.Error().(*errorBody)
	if body != nil && body.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", op, body.Error, resp.StatusCode())
	}
	return fmt.Errorf("%s: status %d", op, resp.StatusCode())
}

func (c *Client) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var out []models.SessionSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/chat/sessions")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("list sessions", resp)
	}
	return out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var out models.Session
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/chat/sessions/" + id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("get session", resp)
	}
	return &out, nil
}

func (c *Client) CreateSession(ctx context.Context, id, title string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"id": id, "title": title}).
		SetError(&errorBody{}).
		Post("/api/chat/sessions")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if resp.IsError() {
		return apiError("create session", resp)
	}
	return nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Delete("/api/chat/sessions/" + id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if resp.IsError() {
		return apiError("delete session", resp)
	}
	return nil
}

func (c *Client) AddMessage(ctx context.Context, sessionID string, msg models.Message) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"sessionId": sessionID,
			"id":        msg.ID,
			"role":      msg.Role,
			"content":   msg.Content,
			"citations": msg.Citations,
		}).
		SetError(&errorBody{}).
		Post("/api/chat/messages")
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	if resp.IsError() {
		return apiError("add message", resp)
	}
	return nil
}
