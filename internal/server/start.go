package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Start runs the HTTP server until SIGINT or SIGTERM, then drains
// connections and shuts the service down in dependency order.
func (s *Server) Start() error {
	s.RegisterRoutes()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", s.Cfg.Addr)
		if err := s.E.Start(s.Cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	s.shutdown()
	return nil
}

// shutdown tears down the realtime plumbing: stop accepting events, close
// every socket (which fans out the usual disconnect cleanup), then stop the
// sweeper, the bus, and finally the database.
func (s *Server) shutdown() {
	s.Registry.CloseAll()
	s.Presence.Shutdown()
	s.cancel()
	if err := s.Bus.Close(); err != nil {
		slog.Error("Bus close failed", "error", err)
	}
	if err := s.DB.Close(context.Background()); err != nil {
		slog.Error("Database close failed", "error", err)
	}
	slog.Info("Shutdown complete")
}
