// Package server exposes the admin HTTP API: health, dispatch stats,
// and the redacted running configuration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/magpiebot/magpie/internal/config"
	"github.com/magpiebot/magpie/internal/dispatch"
	"github.com/magpiebot/magpie/internal/version"
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
}

// StatsSource exposes dispatcher counters to the API.
type StatsSource interface {
	Stats() dispatch.Stats
}

// Server is the admin HTTP server.
type Server struct {
	cfg    *config.Config
	stats  StatsSource
	log    zerolog.Logger
	server *http.Server
}

// New creates the admin server around the running config.
func New(cfg *config.Config, stats StatsSource, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		stats: stats,
		log:   log.With().Str("component", "server").Logger(),
	}
}

// Start serves until Stop is called. A closed listener is a clean exit.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info().Str("addr", addr).Bool("auth", s.cfg.Server.APIKey != "").Msg("admin server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.loggingMiddleware())
	if s.cfg.Server.APIKey != "" {
		engine.Use(s.authMiddleware())
	}

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/config", s.handleConfig)

	return engine
}

// Middleware

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health endpoint doesn't require auth
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		if c.GetHeader("X-API-Key") != s.cfg.Server.APIKey {
			c.JSON(http.StatusUnauthorized, Response{
				Code:    401,
				Data:    nil,
				Message: "invalid or missing API key",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code: 200,
		Data: gin.H{
			"status":  "ok",
			"version": version.Version,
		},
		Message: "everything is good",
	})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    s.stats.Stats(),
		Message: "dispatch counters",
	})
}

func (s *Server) handleConfig(c *gin.Context) {
	redacted := *s.cfg
	if redacted.Server.APIKey != "" {
		redacted.Server.APIKey = "[redacted]"
	}
	c.JSON(http.StatusOK, Response{
		Code:    200,
		Data:    redacted,
		Message: "running configuration",
	})
}
