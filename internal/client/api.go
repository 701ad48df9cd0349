// ABOUTME: Typed wrappers for the console endpoints the admin CLI uses
// ABOUTME: Response shapes are shared with the server package

package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/2389/assistant-console/internal/knowledge"
	"github.com/2389/assistant-console/internal/prompt"
	"github.com/2389/assistant-console/internal/server"
	"github.com/2389/assistant-console/internal/templates"
)

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, username, password string) (*server.LoginResponse, error) {
	var out server.LoginResponse
	in := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context) (*server.UserResponse, error) {
	var out server.UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TemplateFilter narrows ListTemplates.
type TemplateFilter struct {
	Category string
	Query    string
	Active   *bool
	Limit    int
}

func (f TemplateFilter) values() url.Values {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Active != nil {
		q.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

func (c *Client) ListTemplates(ctx context.Context, f TemplateFilter) ([]server.TemplateResponse, error) {
	var out []server.TemplateResponse
	if err := c.do(ctx, http.MethodGet, "/api/templates", f.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetTemplate(ctx context.Context, id string) (*server.TemplateResponse, error) {
	var out server.TemplateResponse
	if err := c.do(ctx, http.MethodGet, "/api/templates/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scan asks the server which placeholders content holds and what registry
// a save would produce.
func (c *Client) Scan(ctx context.Context, content string, vars []prompt.Variable) (*templates.ScanResult, error) {
	var out templates.ScanResult
	in := map[string]any{"content": content, "variables": vars}
	if err := c.do(ctx, http.MethodPost, "/api/templates/scan", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Render previews a stored template with values.
func (c *Client) Render(ctx context.Context, id string, values map[string]string) (*templates.Preview, error) {
	var out templates.Preview
	in := map[string]any{"values": values}
	if err := c.do(ctx, http.MethodPost, "/api/templates/"+url.PathEscape(id)+"/preview", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]server.CategoryResponse, error) {
	var out []server.CategoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/categories", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListProviders(ctx context.Context) ([]server.ProviderResponse, error) {
	var out []server.ProviderResponse
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchKnowledge runs a fuzzy search over the knowledge base. A zero
// limit lets the server pick.
func (c *Client) SearchKnowledge(ctx context.Context, query string, limit int) ([]knowledge.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []knowledge.SearchResult
	if err := c.do(ctx, http.MethodGet, "/api/knowledge/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
