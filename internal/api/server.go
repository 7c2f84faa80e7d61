// Package api exposes the task-tracking HTTP surface: CRUD routes over the
// record store, the version-checked PATCH protocol, and basic-auth
// enforcement against the users table.
package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/taskwell/taskwell/internal/store"
)

// Server manages the HTTP listener and routes requests to the store.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	store    *store.Store
	logger   *log.Logger
	wg       sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: ":3000"). Use ":0" for a random port.
	Addr string

	// Store backs all routes. Required.
	Store *store.Store

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger
}

// NewServer creates an HTTP API server over the given store.
func NewServer(config *Config) *Server {
	addr := config.Addr
	if addr == "" {
		addr = ":3000"
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		addr:   addr,
		store:  config.Store,
		logger: logger,
	}
}

// Start begins listening and serving. Non-blocking; use Stop to shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("API server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("API server stopped")
	return nil
}

// Addr returns the listening address, useful when started with ":0".
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}
