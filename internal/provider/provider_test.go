// ABOUTME: Tests for the provider service and go-openai completer
// ABOUTME: Uses a temp SQLite store and an httptest fake of the chat completions endpoint

package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/store"
)

func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeOpenAI serves /v1/chat/completions and records the last request body.
func fakeOpenAI(t *testing.T, status int, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &last)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

const okCompletion = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "gpt-test",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "pong"}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
}`

func compatibleInput(baseURL string) Input {
	return Input{
		Name:    "Local",
		Kind:    KindOpenAICompatible,
		BaseURL: baseURL,
		APIKey:  "sk-local-1234567890",
		Models:  []store.Model{{ID: "gpt-test", DisplayName: "Test"}},
	}
}

func TestValidate(t *testing.T) {
	valid := func() *store.Provider {
		return &store.Provider{
			Name:         "OpenAI",
			Kind:         KindOpenAI,
			Models:       []store.Model{{ID: "gpt-4o"}},
			DefaultModel: "gpt-4o",
			Temperature:  0.7,
		}
	}

	tests := []struct {
		name   string
		mutate func(*store.Provider)
		ok     bool
	}{
		{"valid", func(*store.Provider) {}, true},
		{"no name", func(p *store.Provider) { p.Name = " " }, false},
		{"bad kind", func(p *store.Provider) { p.Kind = "bard" }, false},
		{"azure needs url", func(p *store.Provider) { p.Kind = KindAzure }, false},
		{"azure with url", func(p *store.Provider) { p.Kind = KindAzure; p.BaseURL = "https://x.openai.azure.com" }, true},
		{"relative url", func(p *store.Provider) { p.BaseURL = "/v1" }, false},
		{"ftp url", func(p *store.Provider) { p.BaseURL = "ftp://host" }, false},
		{"hot temperature", func(p *store.Provider) { p.Temperature = 2.5 }, false},
		{"negative tokens", func(p *store.Provider) { p.MaxTokens = -1 }, false},
		{"duplicate model", func(p *store.Provider) { p.Models = append(p.Models, store.Model{ID: "gpt-4o"}) }, false},
		{"blank model", func(p *store.Provider) { p.Models = append(p.Models, store.Model{ID: ""}) }, false},
		{"unlisted default", func(p *store.Provider) { p.DefaultModel = "gpt-5" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(p)
			err := Validate(p)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidProvider)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "••••", MaskKey("short"))
	assert.Equal(t, "••••wxyz", MaskKey("sk-abcdefghijklmnopqrstuvwxyz"))
}

func TestService_CRUDKeepsKeyAndAudits(t *testing.T) {
	st := setupTestStore(t)
	svc := NewService(st, nil, time.Second)
	ctx := auth.WithAuth(context.Background(), &auth.AuthContext{UserID: "admin-1", Role: store.RoleAdmin})

	p, err := svc.Create(ctx, compatibleInput("http://localhost:1234/v1/"))
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", p.DefaultModel)
	assert.Equal(t, "http://localhost:1234/v1", p.BaseURL)
	assert.InDelta(t, 0.7, p.Temperature, 1e-9)

	in := compatibleInput("http://localhost:1234/v1")
	in.APIKey = ""
	in.Name = "Renamed"
	updated, err := svc.Update(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, "sk-local-1234567890", updated.APIKey)

	bad := compatibleInput("")
	_, err = svc.Update(ctx, p.ID, bad)
	assert.ErrorIs(t, err, ErrInvalidProvider)

	require.NoError(t, svc.Delete(ctx, p.ID))
	_, err = svc.Get(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	entries, err := st.ListAuditLog(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, store.AuditDeleteProvider, entries[0].Action)
	assert.Equal(t, "admin-1", entries[0].ActorID)
}

func TestService_TestConnection(t *testing.T) {
	srv, last := fakeOpenAI(t, http.StatusOK, okCompletion)
	svc := NewService(setupTestStore(t), nil, 5*time.Second)
	ctx := context.Background()

	p, err := svc.Create(ctx, compatibleInput(srv.URL+"/v1"))
	require.NoError(t, err)

	res, err := svc.TestConnection(ctx, p.ID, "")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "pong", res.Response)
	assert.Equal(t, "gpt-test", (*last)["model"])
}

func TestService_TestConnection_ProviderError(t *testing.T) {
	srv, _ := fakeOpenAI(t, http.StatusUnauthorized,
		`{"error": {"message": "bad key", "type": "invalid_request_error", "code": "invalid_api_key"}}`)
	svc := NewService(setupTestStore(t), nil, 5*time.Second)
	ctx := context.Background()

	p, err := svc.Create(ctx, compatibleInput(srv.URL+"/v1"))
	require.NoError(t, err)

	res, err := svc.TestConnection(ctx, p.ID, "")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Error, "401")
}

func TestService_Completer_Inactive(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, time.Second)
	ctx := context.Background()

	in := compatibleInput("http://localhost:1/v1")
	off := false
	in.IsActive = &off
	p, err := svc.Create(ctx, in)
	require.NoError(t, err)

	_, _, _, err = svc.Completer(ctx, p.ID, "")
	assert.ErrorIs(t, err, ErrProviderInactive)
}

func TestOpenAICompleter_SendsSystemAndUser(t *testing.T) {
	srv, last := fakeOpenAI(t, http.StatusOK, okCompletion)
	c := NewOpenAICompleter(&store.Provider{Kind: KindOpenAICompatible, BaseURL: srv.URL + "/v1", APIKey: "k"}, 5*time.Second)

	resp, err := c.Complete(context.Background(), Request{Model: "gpt-test", System: "be brief", Prompt: "ping", MaxTokens: 8})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 6, resp.Usage.TotalTokens)

	messages, ok := (*last)["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "ping", messages[1].(map[string]any)["content"])
}

func TestService_Seed(t *testing.T) {
	svc := NewService(setupTestStore(t), nil, time.Second)
	ctx := context.Background()

	seeds := []config.ProviderSeed{{Name: "OpenAI", APIKey: "sk-x", Models: []string{"gpt-4o-mini"}}}
	n, err := svc.Seed(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// second run is a no-op
	n, err = svc.Seed(ctx, seeds)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, KindOpenAI, list[0].Kind)
	assert.Equal(t, "gpt-4o-mini", list[0].DefaultModel)
}
