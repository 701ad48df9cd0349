// ABOUTME: HTTP client for the console REST API used by the admin CLI
// ABOUTME: Sends bearer tokens and turns JSON error bodies into *APIError

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized is matched by errors.Is for 401 responses.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the console.
type APIError struct {
	Status  int
	Message string
	Missing []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s (status %d, missing: %s)", msg, e.Status, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("%s (status %d)", msg, e.Status)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client talks to one console server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for baseURL. An empty token sends no Authorization
// header, which is enough for login and health checks.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Error   string   `json:"error"`
			Missing []string `json:"missing"`
		}
		if err := json.Unmarshal(data, &body); err == nil {
			apiErr.Message = body.Error
			apiErr.Missing = body.Missing
			return apiErr
		}
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

// Health reports whether the server answers /health and /health/ready.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	for _, check := range []struct {
		path string
		dst  *string
	}{
		{"/health", &h.Live},
		{"/health/ready", &h.Ready},
	} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+check.path, nil)
		if err != nil {
			return h, fmt.Errorf("creating request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return h, fmt.Errorf("health check failed: %w", err)
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		resp.Body.Close()
		*check.dst = strings.TrimSpace(string(data))
		if resp.StatusCode != http.StatusOK {
			return h, &APIError{Status: resp.StatusCode, Message: *check.dst}
		}
	}
	return h, nil
}

// Health holds the bodies of the two health endpoints.
type Health struct {
	Live  string
	Ready string
}
