// Package api exposes the prioritization service as JSON over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventtriage/internal/logger"
	"eventtriage/internal/priority"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Config controls the HTTP listener.
type Config struct {
	Addr            string
	Mode            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DefaultPageSize int
	ExportMaxRows   int
}

// Server serves the triage API.
type Server struct {
	cfg    Config
	svc    *priority.Service
	engine *gin.Engine
}

// NewServer builds the router.
func NewServer(svc *priority.Service, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Mode == "" {
		cfg.Mode = gin.ReleaseMode
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 25
	}
	gin.SetMode(cfg.Mode)

	s := &Server{cfg: cfg, svc: svc, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestID(), accessLog())
	s.routes()
	return s
}

// Handler returns the router for use with httptest or a custom listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "scheme": s.svc.Calculator().Scheme()})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/events", s.listEvents)
		v1.GET("/export", s.exportEvents)
		v1.GET("/events/:id", s.getEvent)
		v1.POST("/events/:id/process", s.markProcessed)
		v1.POST("/events/:id/priority", s.updatePriority)
		v1.POST("/score", s.scoreEvent)

		stats := v1.Group("/stats")
		stats.GET("/summary", s.summary)
		stats.GET("/attack-types", s.attackDistribution)
		stats.GET("/hourly", s.hourly)
		stats.GET("/ports", s.topPorts)
		stats.GET("/attackers", s.topAttackers)
		stats.GET("/targets", s.topTargets)
		stats.GET("/trend", s.trend)
		stats.GET("/heatmap", s.heatmap)
		stats.GET("/kpi", s.kpi)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API listening on %s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	logger.Infof("HTTP API stopped")
	return nil
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d took=%s request_id=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start), c.GetString("request_id"))
	}
}
