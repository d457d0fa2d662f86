// Package httpapi exposes a router over HTTP: health, the connected names,
// sends answered synchronously and the websocket gate endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/rmacdonaldsmith/meshbus-go/internal/gate"
	"github.com/rmacdonaldsmith/meshbus-go/internal/router"
	"github.com/rmacdonaldsmith/meshbus-go/internal/telemetry"
	"github.com/rmacdonaldsmith/meshbus-go/pkg/network"
)

const (
	// DefaultNodeName is the name the HTTP node connects under
	DefaultNodeName = "http"
	// DefaultSendTimeout bounds the wait for an answer when a send sets none
	DefaultSendTimeout = 5 * time.Second
)

// ErrNilRouter is returned when creating a server without a router
var ErrNilRouter = errors.New("http api requires a router")

// Config holds server configuration
type Config struct {
	// Addr is the listen address, ":8080" when empty
	Addr string

	// NodeName is the name sends made over HTTP come from
	NodeName string

	// SendTimeout bounds the wait for an answer when a send sets none
	SendTimeout time.Duration

	// Gate is the template of the gates linked over the websocket endpoint
	Gate gate.Config

	Logger       *slog.Logger
	MetricSink   metrics.MetricSink
	MetricLabels []metrics.Label

	// Metrics, when set, is served on /api/v1/metrics
	Metrics *metrics.InmemSink
}

// SetDefaults fills unset fields with safe defaults
func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.NodeName == "" {
		c.NodeName = DefaultNodeName
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MetricSink == nil {
		c.MetricSink = &metrics.BlackholeSink{}
	}
	if c.Gate.Logger == nil {
		c.Gate.Logger = c.Logger
	}
	if c.Gate.MetricSink == nil {
		c.Gate.MetricSink = c.MetricSink
	}
}

// Server represents the HTTP API server
type Server struct {
	cfg        Config
	router     *router.Router
	node       *network.Endpoint
	handlers   *Handlers
	middleware *Middleware
	gates      *gate.WebsocketHandler
	server     *http.Server
}

// NewServer creates a new HTTP API server, connecting its node to r
func NewServer(r *router.Router, cfg Config) (*Server, error) {
	if r == nil {
		return nil, ErrNilRouter
	}
	cfg.SetDefaults()
	if cfg.SendTimeout < 0 {
		return nil, fmt.Errorf("send timeout cannot be negative")
	}

	node := network.NewEndpoint()
	if err := r.Connect(cfg.NodeName, node); err != nil {
		return nil, fmt.Errorf("failed to connect http node: %w", err)
	}

	logger := cfg.Logger.With(telemetry.LabelNode.L(cfg.NodeName))
	s := &Server{
		cfg:        cfg,
		router:     r,
		node:       node,
		handlers:   NewHandlers(r, node, cfg.SendTimeout, logger),
		middleware: NewMiddleware(logger, cfg.MetricSink, cfg.MetricLabels),
		gates:      gate.NewWebsocketHandler(r, cfg.Gate),
	}

	s.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        s.setupRoutes(),
		ReadTimeout:    30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return s, nil
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Gates returns the names of the gates linked over the websocket endpoint
func (s *Server) Gates() []string {
	return s.gates.Gates()
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Serve accepts connections on lis
func (s *Server) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop gracefully stops the HTTP server and disconnects its node
func (s *Server) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if derr := s.router.Disconnect(s.cfg.NodeName); derr != nil && !errors.Is(derr, router.ErrNotConnected) {
		err = errors.Join(err, derr)
	}
	return err
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))
	mux.Handle("/api/v1/nodes", withMiddleware(s.handlers.Nodes))
	mux.Handle("/api/v1/send", withMiddleware(s.handlers.Send))
	if s.cfg.Metrics != nil {
		mux.Handle("/api/v1/metrics", withMiddleware(s.handleMetrics))
	}

	// The websocket upgrade writes its own headers.
	mux.Handle("/api/v1/gate", s.middleware.Recovery(s.middleware.Logging(s.gates.ServeHTTP)))

	mux.Handle("/", withMiddleware(s.handleRoot))
	return mux
}

// handleMetrics reports the current metrics intervals
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.cfg.Metrics.DisplayMetrics(w, r)
	if err != nil {
		s.handlers.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.handlers.writeJSON(w, summary, http.StatusOK)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.handlers.writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]any{
		"service":     "meshbus HTTP API",
		"version":     "1.0.0",
		"description": "HTTP access to a meshbus router",
		"endpoints": map[string]string{
			"health":  "GET /api/v1/health",
			"nodes":   "GET /api/v1/nodes",
			"send":    "POST /api/v1/send",
			"metrics": "GET /api/v1/metrics",
			"gate":    "GET /api/v1/gate?gate={name} (websocket)",
		},
	}
	s.handlers.writeJSON(w, info, http.StatusOK)
}
