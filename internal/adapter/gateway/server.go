// Package gateway exposes the chat pipeline over HTTP. Responses are always
// complete JSON documents; there is no streaming surface, because output
// safety checks require the full model response before anything is returned.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"tutorgate/internal/domain"
	"tutorgate/internal/infra/config"
	"tutorgate/internal/infra/middleware"
)

// Server is the HTTP gateway.
type Server struct {
	handler *Handler
	auth    Authenticator // nil when auth is disabled
	cfg     config.GatewayConfig
	logger  *slog.Logger

	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server. Pass a nil auth to disable
// authentication (local development only).
func NewServer(handler *Handler, auth Authenticator, cfg config.GatewayConfig, logger *slog.Logger) *Server {
	return &Server{
		handler: handler,
		auth:    auth,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start begins serving. Blocks until the context is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handler.HandleHealth)
	mux.Handle("/v1/chat", s.requireAuth(http.HandlerFunc(s.handler.HandleChat)))
	mux.Handle("/v1/models", s.requireAuth(http.HandlerFunc(s.handler.HandleModels)))

	var h http.Handler = mux
	if s.cfg.RateLimit.Enabled {
		h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
			RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
			BurstSize:      s.cfg.RateLimit.BurstSize,
		})(h)
	}
	h = middleware.RequestLogger(s.logger)(h)
	h = middleware.SecurityHeaders(h)

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) {
	if s.httpSrv == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("gateway shutdown", "error", err)
	}
}

// Addr returns the bound listen address, useful when Addr was ":0".
func (s *Server) Addr() string { return s.boundAddr }

// requireAuth wraps a handler with bearer token authentication.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	if s.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.auth.Authenticate(bearerToken(r))
		if err != nil {
			writeError(w, http.StatusUnauthorized, domain.CodeUnauthorized, "invalid or missing token", nil)
			return
		}
		s.logger.Debug("client authenticated", "client", info.Name)
		next.ServeHTTP(w, r)
	})
}
