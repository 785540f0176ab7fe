// Package httpapi serves the bridge's read-only HTTP surface: health, a status snapshot
// and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/msageha/craftbridge/internal/model"
)

// Snapshot is the body of GET /status.
type Snapshot struct {
	Username         string             `json:"username"`
	SessionState     model.SessionState `json:"session_state"`
	SessionID        string             `json:"session_id,omitempty"`
	Connected        bool               `json:"connected"`
	Reconnecting     bool               `json:"reconnecting"`
	Attempt          int                `json:"attempt"`
	ActionBusy       bool               `json:"action_busy"`
	QueueLength      int                `json:"queue_length"`
	OutstandingGoals int                `json:"outstanding_goals"`
	Uptime           string             `json:"uptime"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type Server struct {
	echo     *echo.Echo
	status   func() Snapshot
	logger   *zap.Logger
	listener net.Listener
}

func NewServer(status func() Snapshot, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if status == nil {
		return nil, errors.New("status source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{echo: e, status: status, logger: logger}
	e.GET("/health", s.handleHealth)
	e.GET("/status", s.handleStatus)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return s, nil
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status())
}

// Listen binds addr so the bound address is known before serving (":0" picks a port).
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.echo.Listener = ln
	return nil
}

func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until Shutdown. Listen must have been called.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("httpapi: Serve before Listen")
	}
	s.logger.Info("http server listening", zap.String("addr", s.Addr()))
	if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
