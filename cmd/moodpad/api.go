package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"moodpad/internal/document"
)

// apiClient talks to the document and room routes of cmd/api.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 15 * time.Second}}
}

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) document(ctx context.Context, key string) (*document.Document, error) {
	var out struct {
		Document json.RawMessage `json:"document"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/documents/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return document.Parse(out.Document)
}

type savedVersion struct {
	Changed bool `json:"changed"`
	Version *struct {
		Hash string `json:"hash"`
	} `json:"version"`
}

func (c *apiClient) save(ctx context.Context, key string, body []byte) (savedVersion, error) {
	var out savedVersion
	err := c.do(ctx, http.MethodPut, "/api/documents/"+url.PathEscape(key), body, &out)
	return out, err
}

func (c *apiClient) roomToken(ctx context.Context, room, peerID, role string) (string, error) {
	body, err := json.Marshal(map[string]string{"peerId": peerID, "role": role})
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(room)+"/tokens", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// relayURL turns the http base into the websocket base the relay serves.
func (c *apiClient) relayURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	default:
		return c.baseURL
	}
}
