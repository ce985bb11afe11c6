// Package adminclient talks to the document-management backend's
// administrative endpoints: the document pipeline, the vector store,
// and the audit log.
package adminclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// DocumentStats describes one ingested document.
type DocumentStats struct {
	Filename   string `json:"filename"`
	Type       string `json:"type"`
	Chunks     int    `json:"chunks"`
	TotalChars int    `json:"total_chars"`
	PageCount  int    `json:"page_count"`
}

// Chunk is one stored slice of an ingested document.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// VectorStats describes the vector index.
type VectorStats struct {
	TotalVectors int    `json:"total_vectors"`
	IndexSize    int    `json:"index_size"`
	ModelInfo    string `json:"model_info"`
}

// SearchResult is one vector similarity hit.
type SearchResult struct {
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// LogEntry is one audit record.
type LogEntry struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	User      string `json:"user"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Details   string `json:"details"`
}

const defaultSearchK = 5

// Client is a typed wrapper over the admin HTTP API.
type Client struct {
	http *resty.Client
}

func New(baseURL, token string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(60 * time.Second)
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

// ListDocuments returns stats for every ingested document.
func (c *Client) ListDocuments(ctx context.Context) ([]DocumentStats, error) {
	var out struct {
		Documents []DocumentStats `json:"documents"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/documents")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("list documents", resp)
	}
	return out.Documents, nil
}

// UploadDocument streams a file into the ingestion pipeline and returns
// the resulting stats.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) (*DocumentStats, error) {
	var out DocumentStats
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", filename, r).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/documents")
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("upload document", resp)
	}
	return &out, nil
}

// DeleteDocument removes a document and its vectors.
func (c *Client) DeleteDocument(ctx context.Context, filename string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Delete("/api/documents/" + filename)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if resp.IsError() {
		return apiError("delete document", resp)
	}
	return nil
}

// DocumentChunks returns the stored chunks of one document.
func (c *Client) DocumentChunks(ctx context.Context, filename string) ([]Chunk, error) {
	var out struct {
		Chunks []Chunk `json:"chunks"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/documents/" + filename + "/chunks")
	if err != nil {
		return nil, fmt.Errorf("document chunks: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("document chunks", resp)
	}
	return out.Chunks, nil
}

// VectorStats returns index-level statistics.
func (c *Client) VectorStats(ctx context.Context) (*VectorStats, error) {
	var out VectorStats
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/api/vectors/stats")
	if err != nil {
		return nil, fmt.Errorf("vector stats: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("vector stats", resp)
	}
	return &out, nil
}

// SearchVectors runs a similarity query. k <= 0 uses the service
// default of 5 results.
func (c *Client) SearchVectors(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = defaultSearchK
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]any{"query": query, "k": k}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/api/vectors/search")
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("search vectors", resp)
	}
	return out.Results, nil
}

// ClearVectors drops the whole index.
func (c *Client) ClearVectors(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Delete("/api/vectors")
	if err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	if resp.IsError() {
		return apiError("clear vectors", resp)
	}
	return nil
}

// AuditLogs returns the most recent audit entries, newest first.
// limit <= 0 asks for the service default of 50.
func (c *Client) AuditLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	req := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{})
	if limit > 0 {
		req.SetQueryParam("limit", fmt.Sprint(limit))
	}
	var out struct {
		Logs []LogEntry `json:"logs"`
	}
	resp, err := req.SetResult(&out).Get("/api/audit/logs")
	if err != nil {
		return nil, fmt.Errorf("audit logs: %w", err)
	}
	if resp.IsError() {
		return nil, apiError("audit logs", resp)
	}
	return out.Logs, nil
}

// ClearAuditLogs wipes the audit trail.
func (c *Client) ClearAuditLogs(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetError(&errorBody{}).
		Delete("/api/audit/logs")
	if err != nil {
		return fmt.Errorf("clear audit logs: %w", err)
	}
	if resp.IsError() {
		return apiError("clear audit logs", resp)
	}
	return nil
}
