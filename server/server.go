package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/bytepipe/config"
	"github.com/kbukum/bytepipe/logger"
	"github.com/kbukum/bytepipe/observability"
	"github.com/kbukum/bytepipe/server/endpoint"
	"github.com/kbukum/bytepipe/server/middleware"
	"github.com/kbukum/bytepipe/version"
)

// Server is the HTTP front of bytepipe: a Gin engine behind an h2c handler so
// long uploads can stream over cleartext HTTP/2 as well as HTTP/1.1.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	handler    http.Handler
	cfg        config.HTTPConfig
	stream     config.StreamConfig
	service    string
	log        *logger.Logger

	metrics       *observability.Metrics
	streamMetrics *observability.StreamMetrics
	checkers      []observability.HealthChecker

	mu       sync.Mutex
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records HTTP request metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithStreamMetrics records pipeline metrics for every streamed request.
func WithStreamMetrics(m *observability.StreamMetrics) Option {
	return func(s *Server) { s.streamMetrics = m }
}

// WithHealthChecker adds a component to GET /health.
func WithHealthChecker(c observability.HealthChecker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c) }
}

// New creates a Server from the service configuration. Defaults must already
// be applied to cfg.
func New(cfg *config.ServiceConfig, log *logger.Logger, opts ...Option) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel && cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:  gin.New(),
		cfg:     cfg.HTTP,
		stream:  cfg.Stream,
		service: cfg.Name,
		log:     log.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()

	chain := middleware.Chain(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.RequestLogger(s.log, s.service, s.metrics),
		middleware.BodySizeLimit(s.cfg.MaxBodySize),
	)
	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          120 * time.Second,
	}
	s.handler = h2c.NewHandler(chain(s.engine), h2s)

	// No read or write deadline: request and response bodies stream for as
	// long as the pipeline runs.
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", endpoint.Health(s.service, version.GetShortVersion(), s.checkers...))
	s.engine.GET("/version", endpoint.Version())

	v1 := s.engine.Group("/v1")
	v1.POST("/split", s.handleSplit)
	v1.POST("/checksum", s.handleChecksum)
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Engine returns the Gin engine for additional route registration.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start binds the address and serves in a goroutine. It returns once the
// listener is bound.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server error")
		}
	}()

	s.log.Info("HTTP server started", map[string]interface{}{
		"addr": listener.Addr().String(),
	})
	return nil
}

// Stop gracefully shuts down the server, waiting at most the configured
// shutdown timeout for in-flight streams.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.log.Info("HTTP server shut down successfully")
	return nil
}

// Run starts the server and blocks until ctx is done, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop(context.WithoutCancel(ctx))
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
