// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package server provides the REST+websocket front end over
// internal/manager.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"rangedl/internal/manager"
	"rangedl/pkg/rangedl"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Port           int
	DefaultSaveDir string
	MaxThreadCount int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           "0.0.0.0",
		Port:           8080,
		DefaultSaveDir: "./downloads",
		MaxThreadCount: 10,
	}
}

// Server is the HTTP server exposing the download manager.
type Server struct {
	config     Config
	httpServer *http.Server
	mgr        *manager.Manager
	wsHub      *WSHub
}

// New creates a new server with the given configuration.
func New(cfg Config) *Server {
	opts := rangedl.DefaultOptions()
	if cfg.MaxThreadCount > 0 {
		opts.MaxThreadCount = cfg.MaxThreadCount
	}
	mgr := manager.New(opts)
	return &Server{
		config: cfg,
		mgr:    mgr,
		wsHub:  NewWSHub(mgr),
	}
}

// ListenAndServe starts the HTTP server and the background job-to-websocket
// relay; it blocks until ctx is cancelled or the server fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.wsHub.Run()
	go s.relayJobsToHub(ctx)
	go s.relaySegmentsToHub(ctx)

	mux := http.NewServeMux()
	s.registerAPIRoutes(mux)

	addr := fmt.Sprintf("%s:%d", s.config.Addr, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.corsMiddleware(s.loggingMiddleware(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("server starting on http://%s", addr)
	log.Printf("api: http://localhost:%d/api", s.config.Port)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// relayJobsToHub forwards every manager job update to connected websocket
// clients until ctx is done.
func (s *Server) relayJobsToHub(ctx context.Context) {
	ch := s.mgr.Subscribe()
	defer s.mgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			s.wsHub.BroadcastJob(job)
		}
	}
}

// relaySegmentsToHub forwards every per-segment update to connected
// websocket clients until ctx is done.
func (s *Server) relaySegmentsToHub(ctx context.Context) {
	ch := s.mgr.SubscribeSegments()
	defer s.mgr.UnsubscribeSegments(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.wsHub.BroadcastSegment(ev)
		}
	}
}

// registerAPIRoutes sets up all API endpoints.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("POST /api/downloads", s.handleStartDownload)
	mux.HandleFunc("GET /api/downloads", s.handleListJobs)
	mux.HandleFunc("GET /api/downloads/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /api/downloads/{id}", s.handleCancelJob)

	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			allowed := len(s.config.AllowedOrigins) == 0
			for _, o := range s.config.AllowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
