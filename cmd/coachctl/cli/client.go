package cli

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
)

// APIError is a non-2xx admin API answer.
type APIError struct {
	Status  int
	Message string
	Key     string
}

func (e *APIError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("admin API %d: %s (key %s)", e.Status, e.Message, e.Key)
	}
	return fmt.Sprintf("admin API %d: %s", e.Status, e.Message)
}

// Client is a thin JSON client for /api/v1. With an operator set it trades
// the API key for an operator token on first use, so review actions are
// recorded against that operator instead of the key.
type Client struct {
	base     string
	apiKey   string
	operator string
	token    string
	http     *http.Client
}

func NewClient(base, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(base, "/") + "/api/v1",
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// AsOperator makes later calls authenticate as operator.
func (c *Client) AsOperator(operator string) *Client {
	c.operator = strings.TrimSpace(operator)
	c.token = ""
	return c
}

func (c *Client) login(ctx context.Context) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/token", nil, map[string]string{"operator": c.operator}, &out, c.useKey); err != nil {
		return fmt.Errorf("operator login: %w", err)
	}
	c.token = out.Token
	return nil
}

func (c *Client) useKey(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (c *Client) useToken(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
}

// Do sends body as JSON (raw bytes pass through unchanged) and decodes the
// answer into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.operator == "" {
		return c.send(ctx, method, path, query, body, out, c.useKey)
	}
	if c.token == "" {
		if err := c.login(ctx); err != nil {
			return err
		}
	}
	return c.send(ctx, method, path, query, body, out, c.useToken)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body, out any, auth func(*http.Request)) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("admin API unreachable: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Key   string `json:"key"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error, Key: e.Key}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
