// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/logdispatch/internal/info"
	"github.com/mia-platform/logdispatch/internal/logger"
)

const (
	loggerName = "logdispatch:server"
)

// Handler produces the JSON body of a read only route.
type Handler func(ctx context.Context) (any, error)

// Server is the HTTP server exposing the health probes and the inspection routes.
type Server interface {
	AddRoute(method string, path string, handler Handler)
	Start() error
	Stop() error
	StartAsync(ctx context.Context)
}

type impServer struct {
	Config

	app *fiber.App
}

var (
	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// NewServer returns a status server configured from the environment.
func NewServer(ctx context.Context) (Server, error) {
	cfg, err := LoadServerConfig()
	if err != nil {
		return nil, err
	}

	return newServer(ctx, *cfg), nil
}

func newServer(ctx context.Context, cfg Config) *impServer {
	app := fiber.New(fiber.Config{
		AppName:               info.AppName,
		DisableStartupMessage: cfg.DisableStartupMessage,
		ErrorHandler:          errorHandler,
	})
	app.Use(logger.RequestMiddlewareLogger(logger.FromContext(ctx), []string{"/-/"}))

	statusRoutes(app, info.AppName, info.Version)

	return &impServer{
		app:    app,
		Config: cfg,
	}
}

// errorHandler answers with an errorResponse, using the status of fiber errors and 500 for the others.
func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	if code >= http.StatusInternalServerError {
		logger.Named(c.UserContext(), loggerName).Error("error handling request", "path", c.Path(), "error", err.Error())
	}

	return c.Status(code).JSON(errorResponse{
		StatusCode: code,
		Error:      http.StatusText(code),
		Message:    err.Error(),
	})
}

func (s *impServer) AddRoute(method string, path string, handler Handler) {
	s.app.Add(method, path, func(c *fiber.Ctx) error {
		body, err := handler(c.UserContext())
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(body)
	})
}

func (s *impServer) Start() error {
	if err := s.app.Listen(s.address()); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

// Stop waits up to ShutdownTimeout for the open requests, or for all of them when it is zero.
func (s *impServer) Stop() error {
	shutdown := s.app.Shutdown
	if s.ShutdownTimeout > 0 {
		shutdown = func() error { return s.app.ShutdownWithTimeout(s.ShutdownTimeout) }
	}

	if err := shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

func (s *impServer) StartAsync(ctx context.Context) {
	log := logger.Named(ctx, loggerName)
	go func() {
		log.Info("status server listening", "address", s.address())
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}
