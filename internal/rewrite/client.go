package rewrite

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

// Client calls a remote /api/rewrite endpoint, the one cmd/api serves.
type Client struct {
	baseURL string
	http    *http.Client
	room    string
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: timeout}}
}

// InRoom returns a copy of c that presents token for room, letting the
// server check that the caller's role may rewrite.
func (c *Client) InRoom(room, token string) *Client {
	cp := *c
	cp.room, cp.token = room, token
	return &cp
}

type apiRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
	Room string `json:"room,omitempty"`
}

type apiResponse struct {
	RewrittenText string `json:"rewrittenText"`
	Error         string `json:"error"`
}

func (c *Client) Rewrite(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(apiRequest{Text: req.Text, Mode: req.Tone.Mode(), Room: c.room})
	if err != nil {
		return "", fmt.Errorf("encode rewrite request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/rewrite", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build rewrite request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", timeoutOr(KindNetwork, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", timeoutOr(KindNetwork, err)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &Error{Kind: KindService, Err: fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindService, Err: fmt.Errorf("status %d: %s", resp.StatusCode, out.Error)}
	}
	if strings.TrimSpace(out.RewrittenText) == "" {
		return req.Text, nil
	}
	return out.RewrittenText, nil
}
