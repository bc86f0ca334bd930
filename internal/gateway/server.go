// Package gateway runs the local HTTP server used for development and
// self-hosted deployments: it accepts platform invocations over HTTP and
// streams turn events to monitoring clients over WebSocket.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxloop/voxloop/internal/config"
	"github.com/voxloop/voxloop/internal/domain"
	"github.com/voxloop/voxloop/internal/logging"
	"github.com/voxloop/voxloop/internal/version"
)

// Invoker handles one platform invocation. Satisfied by the orchestrator.
type Invoker interface {
	Handle(ctx context.Context, inv domain.Invocation) domain.PlatformResponse
}

// Server is the voxloop gateway HTTP + WebSocket server.
type Server struct {
	cfg     config.GatewayConfig
	token   string
	inv     Invoker
	hub     *Hub
	log     *logging.Logger
	version string

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a gateway server around an invoker.
func New(cfg config.GatewayConfig, inv Invoker, log *logging.Logger) *Server {
	glog := log.Sub("gateway")
	return &Server{
		cfg:     cfg,
		token:   resolveToken(cfg),
		inv:     inv,
		hub:     NewHub(glog.Sub("hub")),
		log:     glog,
		version: version.Version,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Monitoring clients are CLIs and dashboards on the same
				// host; browser cross-origin access is not supported.
				return r.Header.Get("Origin") == ""
			},
		},
	}
}

// Hub returns the event hub so the orchestrator can publish turn events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// resolveToken resolves the auth token from config then environment.
func resolveToken(cfg config.GatewayConfig) string {
	if cfg.AuthToken != "" {
		return cfg.AuthToken
	}
	return os.Getenv("VOXLOOP_GATEWAY_TOKEN")
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens and serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", s.requireAuth(s.handleInvoke))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /ws/events", s.requireAuth(s.handleEvents))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      withMiddleware(mux, s.log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.startedAt = time.Now()
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Bool("auth", s.token != "").
		Msg("gateway server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.hub.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// requireAuth guards a handler with bearer-token auth. An empty configured
// token disables auth, which is only sane on loopback.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := bearerToken(r)
			if got == "" {
				got = r.URL.Query().Get("token")
			}
			if !safeEqual(got, s.token) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// safeEqual performs a constant-time string comparison.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// handleInvoke accepts one platform invocation and returns the turn
// response. The orchestrator owns the deadline; this handler never fails
// an invocation that parsed.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var inv domain.Invocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid invocation payload")
		return
	}
	if inv.EventType == "" {
		inv.EventType = domain.EventUserInput
	}

	resp := s.inv.Handle(r.Context(), inv)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.hub.Count(),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleEvents upgrades to WebSocket and subscribes the connection to the
// turn event stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.hub.Run(conn)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
