// Package server wires the HTTP surface of the relay.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"

	"github.com/takutakahashi/notify-relay/pkg/broadcast"
	"github.com/takutakahashi/notify-relay/pkg/config"
	"github.com/takutakahashi/notify-relay/pkg/mediastore"
	"github.com/takutakahashi/notify-relay/pkg/registry"
	"github.com/takutakahashi/notify-relay/pkg/transport"
)

// Server hosts the subscription, broadcast and temp media endpoints.
type Server struct {
	config     *config.Config
	echo       *echo.Echo
	registry   *registry.Registry
	media      *mediastore.Store
	dispatcher *broadcast.Dispatcher
	vapid      transport.VAPIDKeys
	cron       *cron.Cron
	verbose    bool
}

// New creates a Server with its routes and middleware configured.
func New(cfg *config.Config, reg *registry.Registry, media *mediastore.Store, dispatcher *broadcast.Dispatcher, vapid transport.VAPIDKeys, verbose bool) *Server {
	e := echo.New()

	// Disable Echo's default logger and use custom logging
	e.Logger.SetOutput(io.Discard)
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("3M"))

	s := &Server{
		config:     cfg,
		echo:       e,
		registry:   reg,
		media:      media,
		dispatcher: dispatcher,
		vapid:      vapid,
		verbose:    verbose,
	}

	if verbose {
		e.Use(s.loggingMiddleware())
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.POST("/subscribe", s.handleSubscribe)
	s.echo.POST("/notify", s.handleNotify)
	s.echo.GET("/vapidPublicKey", s.handleVAPIDPublicKey)
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/:token/", s.handleMedia)

	if _, err := os.Stat(s.config.StaticDir); err == nil {
		s.echo.Static("/", s.config.StaticDir)
	}
}

// loggingMiddleware returns Echo middleware for request logging
func (s *Server) loggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Printf("%s %s -> %d (%v)", c.Request().Method, c.Request().URL.Path, c.Response().Status, time.Since(start))
			return err
		}
	}
}

// GetEcho returns the underlying Echo instance.
func (s *Server) GetEcho() *echo.Echo {
	return s.echo
}

// Start runs the HTTP server on the configured port and starts the
// healthcheck schedule. It blocks until the server stops.
func (s *Server) Start() error {
	s.startHealthcheck()
	return s.echo.Start(fmt.Sprintf(":%d", s.config.Port))
}

// Shutdown stops the healthcheck schedule and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.echo.Shutdown(ctx)
}
