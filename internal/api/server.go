// Package api implements the inbound webhook HTTP server (C1's entry
// point): POST /webhook accepts a chart-service signal payload, GET
// /health reports broker connectivity.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yusuke746/trading-system/internal/metrics"
	"github.com/yusuke746/trading-system/internal/model"
)

// SignalReceiver is the SignalCollector's (C2) inbound port: a validated
// signal is handed off and immediately returns, the debounce timer does
// the rest.
type SignalReceiver interface {
	Receive(sig model.Signal)
}

// HealthChecker reports the HealthMonitor's (C12) current view of broker
// connectivity, without itself making a network call.
type HealthChecker interface {
	Connected() bool
}

// Server is the REST API server.
type Server struct {
	router   *gin.Engine
	receiver SignalReceiver
	health   HealthChecker
	addr     string
	server   *http.Server
	log      zerolog.Logger
}

// Config contains server configuration.
type Config struct {
	Host     string
	Port     int
	Receiver SignalReceiver
	Health   HealthChecker
}

var startTime = time.Now()

// NewServer creates a new API server.
func NewServer(config Config, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		receiver: config.Receiver,
		health:   config.Health,
		addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		log:      log.With().Str("component", "api").Logger(),
	}

	router.Use(s.loggerMiddleware())
	router.Use(metrics.GinMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	s.setupRoutes()
	return s
}

// Start starts the HTTP server. Blocks until Stop is called or the
// listener fails for a reason other than a graceful shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", s.addr).Msg("starting webhook server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("stopping webhook server")
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("webhook server shutdown: %w", err)
		}
	}
	return nil
}

func (s *Server) loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("webhook request")
	}
}
