// Package server provides the HTTP front door and its lifecycle.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/frndly/frndlyd/internal/api"
	"github.com/frndly/frndlyd/internal/config"
	"github.com/frndly/frndlyd/internal/session"
	"github.com/sirupsen/logrus"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 0 // No timeout for streaming large guide payloads
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Server serves the playlist, EPG, playback redirect, and keep-alive
// routes, each inbound connection on its own goroutine.
type Server struct {
	log     logrus.FieldLogger
	cfg     *config.Config
	session *session.Manager
	client  *api.Client
	server  *http.Server

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer creates a new server instance.
func NewServer(log logrus.FieldLogger, cfg *config.Config, sess *session.Manager, client *api.Client) *Server {
	return &Server{
		log:     log.WithField("component", "server"),
		cfg:     cfg,
		session: sess,
		client:  client,
	}
}

// Start brings the server up. Starting an already-running server is a
// no-op success.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.log.Debug("Server already running")

		return nil
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	// Resume a persisted session when possible; otherwise log in now.
	// A failed login is not fatal here since the gateway re-logs-in
	// per request.
	if !s.session.Restore() {
		if _, err := s.session.Login(serverCtx); err != nil {
			s.log.WithError(err).Warn("Initial login failed, will retry on demand")
		}
	}

	go s.runKeepAlive(serverCtx)

	routes := NewRoutes(s.log, s.cfg, s.client)

	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr(),
		Handler:      routes.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go s.run(serverCtx)

	s.log.WithField("addr", s.cfg.ListenAddr()).Info("Server started")

	return nil
}

// Stop shuts the server down and releases the listening socket.
func (s *Server) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	if done != nil {
		<-done
	}

	s.log.Info("Server stopped")

	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancel != nil
}

func (s *Server) run(ctx context.Context) {
	defer close(s.done)

	errCh := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down server")
	case err := <-errCh:
		if err != nil {
			s.log.WithError(err).Error("Server error")
		}

		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("Server shutdown error")
	}
}

// runKeepAlive periodically re-validates the session and refreshes the
// channel cache, the same path the keep_alive route exercises.
func (s *Server) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.client.KeepAlive(ctx); err != nil {
				s.log.WithError(err).Warn("Keep-alive failed")
			}
		}
	}
}
