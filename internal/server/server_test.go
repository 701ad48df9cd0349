// ABOUTME: Tests for the console server lifecycle and HTTP API handlers
// ABOUTME: Drives the real mux with httptest and a temporary SQLite database

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/rpc"
	"github.com/2389/assistant-console/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// freeAddr returns a loopback address with a port nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			GRPCAddr: freeAddr(t),
			HTTPAddr: freeAddr(t),
		},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "console.db")},
		Auth:     config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour},
		Providers: config.ProvidersConfig{
			RequestTimeout: 5 * time.Second,
		},
		Knowledge: config.KnowledgeConfig{
			Debounce:       50 * time.Millisecond,
			MaxUploadBytes: 1024,
			SyncWorkers:    2,
		},
		Idempotency: config.IdempotencyConfig{TTL: time.Minute, MaxEntries: 100},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWithConfig(t, testConfig(t))
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

// bootstrapOwner creates the first owner and returns a token for them.
func bootstrapOwner(t *testing.T, srv *Server) string {
	t.Helper()
	_, err := srv.users.Bootstrap(context.Background(), "owner", "correct horse")
	require.NoError(t, err)
	return login(t, srv, "owner", "correct horse")
}

func login(t *testing.T, srv *Server, username, password string) string {
	t.Helper()
	rec := call(t, srv, http.MethodPost, "/api/auth/login", "", loginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

// call sends a JSON request through the server's handler.
func call(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := call(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = call(t, srv, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestAPI_RequiresToken(t *testing.T) {
	srv := newTestServer(t)

	rec := call(t, srv, http.MethodGet, "/api/templates", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, srv, http.MethodGet, "/api/templates", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_LoginAndMe(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	rec := call(t, srv, http.MethodPost, "/api/auth/login", "", loginRequest{Username: "owner", Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, srv, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[UserResponse](t, rec)
	assert.Equal(t, "owner", me.Username)
	assert.Equal(t, store.RoleOwner, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAPI_TemplateLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	rec := call(t, srv, http.MethodPost, "/api/categories", token, map[string]string{"name": "support"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	category := decode[CategoryResponse](t, rec)

	rec = call(t, srv, http.MethodPost, "/api/templates", token, map[string]any{
		"name":     "Greeting",
		"category": "support",
		"content":  "Hello {{name}}, welcome to {{ product }}.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[TemplateResponse](t, rec)
	require.Len(t, created.Variables, 2)
	assert.Equal(t, "name", created.Variables[0].Name)
	assert.Equal(t, "product", created.Variables[1].Name)
	assert.Empty(t, created.Stale)

	path := "/api/templates/" + created.ID

	rec = call(t, srv, http.MethodPost, path+"/preview", token, map[string]any{"values": map[string]string{"name": "Ada"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[map[string]any](t, rec)
	assert.Equal(t, "Hello Ada, welcome to [product].", preview["text"])

	rec = call(t, srv, http.MethodGet, "/api/templates?q=greet", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TemplateResponse](t, rec), 1)

	rec = call(t, srv, http.MethodPost, path+"/variables/rename", token, renameVariableRequest{From: "name", To: "customer"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	renamed := decode[TemplateResponse](t, rec)
	assert.Equal(t, "Hello {{customer}}, welcome to {{ product }}.", renamed.Content)

	rec = call(t, srv, http.MethodPost, path+"/variables/rename", token, renameVariableRequest{From: "missing", To: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, srv, http.MethodPost, path+"/duplicate", token, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Greeting (copy)", decode[TemplateResponse](t, rec).Name)

	rec = call(t, srv, http.MethodPost, "/api/templates", token, map[string]any{"name": "Greeting", "content": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, srv, http.MethodDelete, "/api/categories/"+category.ID, token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, srv, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = call(t, srv, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ScanAndAdHocPreview(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	rec := call(t, srv, http.MethodPost, "/api/templates/scan", token, map[string]any{"content": "{{a}} {{b}} {{a}} {{ }}"})
	require.Equal(t, http.StatusOK, rec.Code)
	scan := decode[map[string][]any](t, rec)
	assert.Equal(t, []any{"a", "b"}, scan["placeholders"])

	rec = call(t, srv, http.MethodPost, "/api/templates/preview", token, map[string]any{
		"content": "**{{who}}** {{ghost}}",
		"variables": []map[string]any{
			{"name": "who", "type": "string", "default_value": "team"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[map[string]any](t, rec)
	assert.Equal(t, "**team** [ghost]", p["text"])
	assert.Contains(t, p["html"], "<strong>team</strong>")

	rec = call(t, srv, http.MethodPost, "/api/templates/scan", token, map[string]any{
		"content":   "{{who}}",
		"variables": []map[string]any{{"name": "who", "type": "string", "default_value": "team"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	scanned := decode[map[string]any](t, rec)
	vars, ok := scanned["variables"].([]any)
	require.True(t, ok)
	require.Len(t, vars, 1)
	assert.Equal(t, "team", vars[0].(map[string]any)["default_value"])

	rec = call(t, srv, http.MethodPost, "/api/templates/scan", token, map[string]any{"content": "x", "bogus": true})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RoleGates(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	rec := call(t, srv, http.MethodPost, "/api/users", token, auth.UserInput{Username: "val", Password: "correct horse", Role: store.RoleViewer})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	viewer := login(t, srv, "val", "correct horse")

	rec = call(t, srv, http.MethodGet, "/api/templates", viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(t, srv, http.MethodPost, "/api/templates", viewer, map[string]any{"name": "x", "content": "y"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, srv, http.MethodGet, "/api/users", viewer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, srv, http.MethodPut, "/api/auth/password", viewer, passwordRequest{Password: "battery staple"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	login(t, srv, "val", "battery staple")
}

// fakeModel serves an OpenAI-compatible chat completion endpoint.
func fakeModel(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "**Sure**"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 1, "total_tokens": 6}
		}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAPI_ProvidersAndTemplateTest(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	var calls int
	model := fakeModel(t, &calls)

	rec := call(t, srv, http.MethodPost, "/api/providers", token, map[string]any{
		"name":          "Local",
		"kind":          "openai_compatible",
		"base_url":      model.URL + "/v1",
		"api_key":       "sk-local-1234567890",
		"models":        []map[string]any{{"id": "gpt-test", "display_name": "Test"}},
		"default_model": "gpt-test",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[ProviderResponse](t, rec)
	assert.Equal(t, "••••7890", p.APIKey)
	assert.NotContains(t, rec.Body.String(), "sk-local")

	rec = call(t, srv, http.MethodPost, "/api/templates", token, map[string]any{
		"name":    "Ask",
		"content": "Summarize {{topic}}",
		"variables": []map[string]any{
			{"name": "topic", "type": "string", "required": true},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	tmpl := decode[TemplateResponse](t, rec)
	testPath := "/api/templates/" + tmpl.ID + "/test"

	rec = call(t, srv, http.MethodPost, testPath, token, map[string]any{"provider_id": p.ID})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	errBody := decode[errorResponse](t, rec)
	assert.Equal(t, []string{"topic"}, errBody.Missing)
	assert.Equal(t, 0, calls)

	send := func(key string) *httptest.ResponseRecorder {
		data, _ := json.Marshal(map[string]any{"provider_id": p.ID, "values": map[string]string{"topic": "tides"}})
		req := httptest.NewRequest(http.MethodPost, testPath, bytes.NewReader(data))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec = send("k1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[map[string]any](t, rec)
	assert.Equal(t, "Summarize tides", result["prompt"])
	assert.Contains(t, result["html"], "<strong>Sure</strong>")

	rec = send("k1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, calls)

	rec = call(t, srv, http.MethodPost, "/api/providers/"+p.ID+"/test", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])

	rec = call(t, srv, http.MethodPost, "/api/templates/"+tmpl.ID+"/test", token, map[string]any{
		"provider_id": "nope",
		"values":      map[string]string{"topic": "x"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_KnowledgeUploadAndSearch(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	upload := func(filename string, content []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("charset", "windows-1252"))
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, _ = fw.Write(content)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/knowledge/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := upload("menu.txt", []byte("cr\xe8me br\xfbl\xe9e recipe"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "menu.txt", res["title"])

	rec = upload("huge.txt", bytes.Repeat([]byte("a"), 4096))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = call(t, srv, http.MethodPost, "/api/knowledge", token, map[string]any{
		"type":  "FAQ",
		"title": "Refunds",
		"faq":   map[string]string{"question": "Can I get a refund?", "answer": "Within 30 days."},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(t, srv, http.MethodGet, "/api/knowledge/search?q=creme", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hits := decode[[]map[string]any](t, rec)
	require.NotEmpty(t, hits)
	assert.Equal(t, "menu.txt", hits[0]["title"])

	rec = call(t, srv, http.MethodGet, "/api/knowledge?type=FAQ", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = call(t, srv, http.MethodPost, "/api/knowledge/"+fmt.Sprint(res["id"])+"/sync", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AuditLog(t *testing.T) {
	srv := newTestServer(t)
	token := bootstrapOwner(t, srv)

	rec := call(t, srv, http.MethodPut, "/api/branding", token, map[string]string{
		"product_name":  "Helper",
		"primary_color": "#112233",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, srv, http.MethodGet, "/api/audit?action=update_branding", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]AuditResponse](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "setting", entries[0].TargetType)

	rec = call(t, srv, http.MethodGet, "/api/audit?since=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{store.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", store.ErrCategoryInUse), http.StatusConflict},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrLastOwner, http.StatusConflict},
		{errBadRequest, http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorStatus(tt.err), tt.err.Error())
	}
}

func TestServer_RunServesHTTPAndGRPC(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, testLogger())
	require.NoError(t, err)
	_, err = srv.users.Bootstrap(context.Background(), "owner", "correct horse")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	health, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, health.Status)

	token := login(t, srv, "owner", "correct horse")
	rpcCtx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
	names, err := rpc.NewClient(conn).Scan(rpcCtx, "{{topic}} and {{tone}}")
	require.NoError(t, err)
	assert.Equal(t, []string{"topic", "tone"}, names)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
