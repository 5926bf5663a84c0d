package orders

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/citydrop/dispatch/core/logger"
)

// Server serves the order API and implements connectors.OrderSource.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// NewServer creates an HTTP server for the order API.
func NewServer(cfg Config, handler http.Handler, log logger.Logger) *Server {
	cfg.SetDefaults()
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("order API listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

// Close shuts the server down immediately.
func (s *Server) Close() error { return s.srv.Close() }
