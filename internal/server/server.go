// ABOUTME: Console server orchestrator that coordinates the HTTP API and gRPC servers
// ABOUTME: Wires the store and services, manages listeners, health endpoints and shutdown

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/assistant-console/internal/auth"
	"github.com/2389/assistant-console/internal/branding"
	"github.com/2389/assistant-console/internal/config"
	"github.com/2389/assistant-console/internal/dedupe"
	"github.com/2389/assistant-console/internal/followups"
	"github.com/2389/assistant-console/internal/formatting"
	"github.com/2389/assistant-console/internal/knowledge"
	"github.com/2389/assistant-console/internal/provider"
	"github.com/2389/assistant-console/internal/rpc"
	"github.com/2389/assistant-console/internal/store"
	"github.com/2389/assistant-console/internal/templates"
)

// Server runs the console's HTTP API and the prompt gRPC service.
type Server struct {
	config      *config.Config
	store       *store.SQLiteStore
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	tokens *auth.JWTVerifier
	login  *auth.Authenticator
	users  *auth.Users

	templates  *templates.Service
	providers  *provider.Service
	formatting *formatting.Service
	branding   *branding.Service
	followups  *followups.Service
	knowledge  *knowledge.Service

	// watcher re-syncs directory resources on change; nil unless knowledge.watch is set
	watcher *knowledge.Watcher

	// idem rejects repeated template test submissions
	idem *dedupe.Cache
}

// initStore opens the SQLite store, honoring CONSOLE_DB_PATH.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CONSOLE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates a gRPC server that requires a viewer token on
// every call except health checks.
func createGRPCServer(users auth.UserStore, tokens auth.TokenVerifier, logger *slog.Logger) *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(
			auth.UnaryInterceptor(users, tokens, store.RoleViewer, logger.With("component", "grpc-auth")),
		),
	)
}

// New creates a Server from cfg. The store is opened, providers are seeded
// and, when enabled, the knowledge watcher is prepared.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	idem := dedupe.New(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries)
	providerSvc := provider.NewService(s, nil, cfg.Providers.RequestTimeout)
	formattingSvc := formatting.NewService(s)

	srv := &Server{
		config:     cfg,
		store:      s,
		logger:     logger.With("component", "server"),
		tokens:     tokens,
		login:      auth.NewAuthenticator(s, tokens, cfg.Auth.TokenTTL),
		users:      auth.NewUsers(s),
		providers:  providerSvc,
		formatting: formattingSvc,
		branding:   branding.NewService(s),
		followups:  followups.NewService(s),
		knowledge:  knowledge.NewService(s, cfg.Knowledge),
		idem:       idem,
		templates: templates.NewService(s,
			templates.WithCompleters(providerSvc),
			templates.WithFormatting(formattingSvc),
			templates.WithIdempotency(idem),
		),
	}

	ctx := context.Background()
	if n, err := providerSvc.Seed(ctx, cfg.Providers.Seed); err != nil {
		srv.closeComponents()
		return nil, err
	} else if n > 0 {
		srv.logger.Info("seeded providers", "count", n)
	}

	if cfg.Knowledge.Watch {
		w, err := knowledge.NewWatcher(srv.knowledge, cfg.Knowledge.Debounce)
		if err != nil {
			srv.closeComponents()
			return nil, fmt.Errorf("creating knowledge watcher: %w", err)
		}
		srv.watcher = w
		srv.knowledge.SetTracker(w)
		if err := knowledge.TrackAll(ctx, srv.knowledge, w); err != nil {
			srv.closeComponents()
			return nil, fmt.Errorf("tracking knowledge directories: %w", err)
		}
	}

	srv.grpcServer = createGRPCServer(s, tokens, logger)
	srv.health = rpc.Register(srv.grpcServer, rpc.NewServer())

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Handler returns the HTTP routes: health checks plus the authenticated API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	s.registerAPIRoutes(mux)
	return mux
}

// grpcEnabled reports whether the prompt gRPC service should be served.
func (s *Server) grpcEnabled() bool {
	return s.config.Server.GRPCAddr != ""
}

// setupTCPListeners creates standard TCP listeners for HTTP and, if
// configured, gRPC.
func (s *Server) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting console",
		"grpc_addr", s.config.Server.GRPCAddr,
		"http_addr", s.config.Server.HTTPAddr,
	)

	if s.grpcEnabled() {
		grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (s *Server) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListeners(ctx)
	}
	return s.setupTCPListeners()
}

// startServers starts the servers and the knowledge watcher in goroutines,
// returning a channel that receives the first failure.
func (s *Server) startServers(ctx context.Context, grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 3)

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if s.watcher != nil {
		go func() {
			if err := s.watcher.Run(ctx); err != nil {
				errCh <- fmt.Errorf("knowledge watcher: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		select {
		case additionalErr := <-errCh:
			s.logger.Error("additional server error", "error", additionalErr)
		default:
		}
		return err
	}
}

// Run starts the servers and blocks until ctx is canceled or a server fails.
// Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := s.startServers(runCtx, grpcLn, httpLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)
	cancel()

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context, since the run
// context is already canceled.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "assistant-console", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens there. gRPC uses
// :50051 and HTTP uses :80, or :443 with tailnet certificates.
func (s *Server) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := s.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	s.logTailscaleStatus(tsCfg.Hostname, status)

	if s.grpcEnabled() {
		grpcLn, err = s.tsnetServer.Listen("tcp", ":50051")
		if err != nil {
			_ = s.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}

	httpLn, err = s.createTailscaleHTTPListener(tsCfg.HTTPS)
	if err != nil {
		if grpcLn != nil {
			_ = grpcLn.Close()
		}
		_ = s.tsnetServer.Close()
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (s *Server) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		s.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener listens on :80, or on :443 with tailnet TLS.
func (s *Server) createTailscaleHTTPListener(https bool) (net.Listener, error) {
	if !https {
		ln, err := s.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}

	s.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := s.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := s.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases what New created before the servers started.
func (s *Server) closeComponents() error {
	if s.idem != nil {
		s.idem.Close()
	}
	return s.store.Close()
}

// Shutdown gracefully stops the servers and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down console")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.closeComponents())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
