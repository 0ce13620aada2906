package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type QueryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
}

// Response carries whatever came back, decoded when possible. Body is nil
// for non-JSON payloads; Raw always holds the response text so failures can
// be printed verbatim.
type Response struct {
	Status int
	Body   map[string]any
	Raw    string
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Query POSTs to /api/v3/query. Transport failures surface as errors;
// HTTP-level failures come back as a Response with the body text intact.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*Response, error) {
	return c.post(ctx, "/api/v3/query", req)
}

func (c *Client) post(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp := &Response{Status: httpResp.StatusCode, Raw: string(raw)}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		resp.Body = decoded
	}
	return resp, nil
}
