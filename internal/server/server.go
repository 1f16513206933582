// Package server is the API host's HTTP surface: health checks, metrics and
// the real-time websocket endpoint.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"riseready-notifications/internal/common/auth"
	"riseready-notifications/internal/common/config"
	"riseready-notifications/internal/common/logger"
	"riseready-notifications/internal/common/realtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store      Pinger
	Hub        *realtime.Hub
	Verifier   *auth.Verifier
	SendBuffer int
	Version    string
	Logger     logger.Logger
}

// NewRouter wires the routes. Deps.Hub may be nil, in which case
// /realtime is not mounted.
func NewRouter(deps Deps) *gin.Engine {
	log := logger.ForComponent(deps.Logger, "http")

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": deps.Version})
	})

	router.GET("/ready", func(c *gin.Context) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := deps.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		body := gin.H{"status": "ready"}
		if deps.Hub != nil {
			body["subscribers"] = deps.Hub.Subscribers()
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Hub != nil {
		rt := realtime.NewServer(deps.Hub, deps.Verifier, deps.SendBuffer, deps.Logger)
		router.GET("/realtime", rt.Handle)
	}

	return router
}

// requestLogger logs every request except the polled health and readiness checks.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			return
		}
		fields := map[string]interface{}{
			"method":    c.Request.Method,
			"path":      path,
			"status":    c.Writer.Status(),
			"latencyMs": time.Since(start).Milliseconds(),
			"clientIp":  c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request failed", fields)
			return
		}
		log.Debug("request handled", fields)
	}
}

type Server struct {
	http   *http.Server
	logger logger.Logger
}

func New(cfg config.ServerConfig, handler http.Handler, log logger.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadHeaderTimeout: config.GetDuration(cfg.ReadTimeout),
		},
		logger: logger.ForComponent(log, "http"),
	}
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// reported as an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.http.Addr})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
