// Package admin exposes the read-only HTTP surface of a component: a health
// endpoint, optional component-specific routes such as the membership view,
// and Prometheus metrics. It is observability glue, not part of the wire
// protocol.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wraps a gin engine bound to one admin address.
type Server struct {
	engine *gin.Engine
	logger *zap.Logger
}

// New builds an admin server with logging and recovery middleware and the
// /metrics endpoint mounted. Callers register their own routes on Engine
// before Serve.
func New(logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	log := logger.Named("admin")
	engine.Use(Logger(log), Recovery(log))
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return &Server{engine: engine, logger: log}
}

// Engine returns the router for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Health mounts a /health endpoint reporting the component identity plus
// whatever the status callback returns.
func (s *Server) Health(component, id string, status func() gin.H) {
	s.engine.GET("/health", func(c *gin.Context) {
		payload := gin.H{component: id, "status": "ok"}
		if status != nil {
			for k, v := range status() {
				payload[k] = v
			}
		}
		c.JSON(http.StatusOK, payload)
	})
}

// Serve runs the admin server on addr until ctx is cancelled. An empty addr
// disables the surface entirely.
func (s *Server) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("admin listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Logger logs every admin request with method, path, status and latency.
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Recovery logs panics and converts them into a 500 response.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", zap.Any("error", err))
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
