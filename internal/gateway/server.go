// Package gateway serves the web chat HTTP API and the websocket streams
// activities are delivered on.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/config"
	"github.com/soyeahso/botrelay/internal/facade"
	"github.com/soyeahso/botrelay/internal/history"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/stream"
)

// Pipeline starts conversation pipeline instances and reports on them.
type Pipeline interface {
	Start(ctx context.Context, in pipeline.Input) (*pipeline.Instance, error)
	Status(ctx context.Context, id string) (*pipeline.Instance, []pipeline.StepRecord, error)
}

// OrchestratorLister lists the orchestrators offered to clients.
type OrchestratorLister interface {
	Public(ctx context.Context, configs *chatconfig.Cache, defaultName string) ([]orchestrator.Info, error)
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Facade        facade.Deps
	History       history.Provider
	Hub           *stream.Hub
	Pipeline      Pipeline
	Orchestrators OrchestratorLister
}

// Server is the botrelay HTTP + WebSocket server.
type Server struct {
	cfg     config.GatewayConfig
	deps    Deps
	log     *logging.Logger
	limiter *ipLimiter

	upgrader websocket.Upgrader

	mu   sync.Mutex
	addr string
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, log *logging.Logger, deps Deps) *Server {
	return &Server{
		cfg:     cfg,
		deps:    deps,
		log:     log.Sub("gateway"),
		limiter: newIPLimiter(cfg.RateLimit),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
}

// checkWebSocketOrigin accepts requests without an Origin header (same
// origin or non-browser clients) and otherwise only the allowed origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start listens for HTTP and WebSocket connections. It blocks until ctx is
// cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Msg("gateway server ready")
	s.emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.emit(context.WithoutCancel(ctx), hooks.EventGatewayStop, map[string]any{})
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if s.deps.Hub != nil {
			s.deps.Hub.CloseAll()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) emit(ctx context.Context, event string, data map[string]any) {
	if s.deps.Facade.Hooks != nil {
		s.deps.Facade.Hooks.Emit(ctx, event, data)
	}
}
