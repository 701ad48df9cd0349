// ABOUTME: Tests for the console REST client
// ABOUTME: Covers error decoding against fakes and a round trip against the real server

package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/server"
	"github.com/2389/assistant-console/internal/store"
)

func TestClient_DecodesJSONErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":"missing required values","missing":["topic"]}`)
	}))
	defer ts.Close()

	_, err := New(ts.URL, "tok").Render(context.Background(), "t1", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.Equal(t, []string{"topic"}, apiErr.Missing)
	assert.Contains(t, err.Error(), "missing: topic")
}

func TestClient_PlainTextErrorAndUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := New(ts.URL+"/", "").Me(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestClient_TemplateFilterQuery(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	active := true
	ts2, err := New(ts.URL, "tok").ListTemplates(context.Background(), TemplateFilter{Category: "sales", Active: &active, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, ts2)
	assert.Equal(t, "active=true&category=sales&limit=5", got)
}

// startConsole runs the real API handler with one bootstrapped owner.
func startConsole(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "console.db")

	s, err := store.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = auth.NewUsers(s).Bootstrap(context.Background(), "owner", "correct horse")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	cfg := &config.Config{
		Server:      config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database:    config.DatabaseConfig{Path: dbPath},
		Auth:        config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", TokenTTL: time.Hour},
		Providers:   config.ProvidersConfig{RequestTimeout: 5 * time.Second},
		Knowledge:   config.KnowledgeConfig{MaxUploadBytes: 1 << 20, SyncWorkers: 1},
		Idempotency: config.IdempotencyConfig{TTL: time.Minute, MaxEntries: 10},
	}
	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ts.URL
}

func TestClient_AgainstServer(t *testing.T) {
	ctx := context.Background()
	base := startConsole(t)

	health, err := New(base, "").Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OK", health.Live)
	assert.Equal(t, "ready", health.Ready)

	_, err = New(base, "").Login(ctx, "owner", "wrong password")
	assert.True(t, errors.Is(err, ErrUnauthorized))

	resp, err := New(base, "").Login(ctx, "owner", "correct horse")
	require.NoError(t, err)
	c := New(base, resp.Token)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "owner", me.Username)
	assert.Equal(t, store.RoleOwner, me.Role)

	scan, err := c.Scan(ctx, "Hi {{ name }}, see {{topic}} and {{name}}", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "topic"}, scan.Placeholders)
	require.Len(t, scan.Variables, 2)
	assert.Equal(t, "name", scan.Variables[0].Name)

	list, err := c.ListTemplates(ctx, TemplateFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = c.GetTemplate(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	results, err := c.SearchKnowledge(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
