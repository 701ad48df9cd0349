// ABOUTME: gRPC interceptors for authenticating PromptService calls with JWT
// ABOUTME: Extracts the bearer token from metadata and populates context for handlers

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/2389/assistant-console/internal/store"
)

// healthServicePrefix is exempt from authentication so probes work without a token.
const healthServicePrefix = "/grpc.health.v1.Health/"

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, ctx context.Context, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates requests
// and requires at least the given role.
func UnaryInterceptor(users UserStore, tokens TokenVerifier, min store.Role, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		authCtx, err := extractAuth(ctx, users, tokens, logger)
		if err != nil {
			return nil, err
		}

		if !authCtx.Can(min) {
			logAuthFailure(logger, ctx, "insufficient role", "user_id", authCtx.UserID, "method", info.FullMethod)
			return nil, status.Errorf(codes.PermissionDenied, "%s role required", min)
		}

		return handler(WithAuth(ctx, authCtx), req)
	}
}

// extractAuth resolves the admin user from the "authorization" metadata entry.
func extractAuth(ctx context.Context, users UserStore, tokens TokenVerifier, logger *slog.Logger) (*AuthContext, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(logger, ctx, "missing metadata")
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		logAuthFailure(logger, ctx, "missing authorization")
		return nil, status.Error(codes.Unauthenticated, "missing authorization")
	}

	token, errMsg := extractBearerToken(values[0])
	if errMsg != "" {
		logAuthFailure(logger, ctx, errMsg)
		return nil, status.Error(codes.Unauthenticated, errMsg)
	}

	claims, err := tokens.Verify(token)
	if err != nil {
		logAuthFailure(logger, ctx, "invalid token", "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	authCtx, errMsg := sessionUser(ctx, users, claims)
	if errMsg != "" {
		logAuthFailure(logger, ctx, errMsg, "user_id", claims.UserID())
		return nil, status.Error(codes.Unauthenticated, errMsg)
	}
	return authCtx, nil
}
