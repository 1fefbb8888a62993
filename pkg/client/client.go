// Package client is the HTTP client used by the console views and netguardctl.
package client

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

// DefaultUserHeader is the header the server reads the acting user from
const DefaultUserHeader = "X-Dev-User"

// Client talks to the GoNetGuard REST API
type Client struct {
	BaseURL    string
	User       string // sent in UserHeader when no Token is set
	UserHeader string
	Token      string // bearer token
	HTTP       *http.Client
}

// New creates a client for baseURL
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		UserHeader: DefaultUserHeader,
		HTTP:       &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIError is a non-2xx response. Error returns the single human-readable
// message shown to the user.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// StatusCode extracts the HTTP status from err, or 0 for transport errors
func StatusCode(err error) int {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}

func (c *Client) ensureHTTP() {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 5 * time.Minute}
	}
}

// do sends a JSON request and decodes a JSON response into out (when non-nil)
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	c.ensureHTTP()
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("server url is empty")
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
		return
	}
	if c.User != "" {
		header := c.UserHeader
		if header == "" {
			header = DefaultUserHeader
		}
		req.Header.Set(header, c.User)
	}
}

// decodeError builds the user-facing message from a {"detail": ...} payload,
// falling back to the status line
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &payload) == nil && len(payload.Detail) > 0 {
		if msg := detailMessage(payload.Detail); msg != "" {
			apiErr.Message = msg
			return apiErr
		}
	}

	apiErr.Message = fmt.Sprintf("request failed: %s", resp.Status)
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		apiErr.Message += ": " + text
	}
	return apiErr
}

// detailMessage accepts a string detail or a list of validation items
func detailMessage(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}

	var items []struct {
		Loc []interface{} `json:"loc"`
		Msg string        `json:"msg"`
	}
	if json.Unmarshal(raw, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				msgs = append(msgs, fmt.Sprintf("%v: %s", it.Loc[len(it.Loc)-1], it.Msg))
			} else {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return strings.TrimSpace(string(raw))
}

// Page holds optional limit/offset query parameters
type Page struct {
	Limit  int
	Offset int
}

func (p Page) values() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", fmt.Sprint(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", fmt.Sprint(p.Offset))
	}
	return q
}

func pathf(format string, args ...interface{}) string {
	escaped := make([]interface{}, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
		} else {
			escaped[i] = a
		}
	}
	return fmt.Sprintf(format, escaped...)
}
