// Package httpserver provides the HTTP server wrapper used for both the
// proxy ingress and the control surface, built on Fiber.
package httpserver

import (
	"context"
	"fmt"
	"time"

	"frlproxy/core/internal/infrastructure/config"
	"frlproxy/core/internal/infrastructure/logger"
	"frlproxy/core/internal/pkg/apperror"
	"frlproxy/core/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// Server wraps a Fiber application with lifecycle management.
type Server struct {
	App *fiber.App
	cfg *config.Config
	log logger.Logger
}

// New builds a Fiber application from cfg.App; Start listens on cfg.Http.
// Prefork is not enabled and has no config option: the in-memory mode state
// and singleflight coalescing are per-process, and preforking would split
// them across unsynchronized workers.
func New(cfg *config.Config, log logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		ErrorHandler: errorHandler,
	})

	return &Server{
		App: app,
		cfg: cfg,
		log: log.WithField("component", "httpserver"),
	}
}

// Start listens on cfg.Http.Host:Port. Blocks until the listener fails or
// Stop is called from another goroutine.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Http.Host, s.cfg.Http.Port)
	s.log.Info(fmt.Sprintf("listening on %s", addr))
	return s.App.Listen(addr)
}

// Stop drains in-flight connections and shuts down within the context
// deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Warn("shutting down http server")
	return s.App.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := apperror.CodeInternal
	message := err.Error()
	var details any
	var retryable bool

	switch e := err.(type) {
	case *apperror.AppError:
		status = e.GetHTTPStatus()
		message = e.Message
		code = e.Code
		details = e.Details
		retryable = e.IsRetryable()
	case *fiber.Error:
		status = e.Code
		message = e.Message
		code = fmt.Sprintf("HTTP_%d", e.Code)
	}

	return response.New(c).Error(status, code, message, retryable, details)
}
