package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	echosession "github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/chatroom/internal/app"
	"github.com/nfrund/chatroom/internal/handlers"
	appmiddleware "github.com/nfrund/chatroom/internal/middleware"
)

// shutdownTimeout bounds how long open requests and sockets get to finish.
const shutdownTimeout = 10 * time.Second

// Server holds the dependencies for the HTTP server.
type Server struct {
	E   *echo.Echo
	App *app.App
}

// New creates the Echo instance for a.
func New(a *app.App) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.HTTPErrorHandler = handlers.ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(appmiddleware.Logger)
	e.Use(echosession.Middleware(a.Sessions))

	s := &Server{E: e, App: a}
	s.RegisterRoutes()
	return s
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if err := s.App.Start(ctx); err != nil {
		return err
	}

	addr := s.App.Config.GetAppAddr()
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case runErr = <-errCh:
		slog.Error("HTTP server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, s.Shutdown(shutdownCtx))
}

// Shutdown stops accepting requests, closes live sockets and releases the
// backends.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.E.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.App.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
