package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"taskomat/internal/comm"
	"taskomat/internal/store"
	"taskomat/internal/task"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed WebSocket origin patterns.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithStore sets the persistence backend for sequence records and run
// history.
func WithStore(st store.Store) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithVersion sets the application version string reported by the API.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server exposing the sequence API and the lifecycle
// message stream.
type Server struct {
	manager        *task.Manager
	executor       *task.Executor
	bus            *comm.Bus
	store          store.Store
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	apiKey         string
	allowedOrigins []string
	version        string
	wg             sync.WaitGroup
	unsubMessages  func()

	// runMu guards the "one run at a time" bookkeeping around the executor.
	runMu        sync.Mutex
	runningID    string
	runStartedAt time.Time
}

// NewServer creates a new web server. Engine messages published on the bus
// are broadcast to all WebSocket clients.
func NewServer(manager *task.Manager, executor *task.Executor, bus *comm.Bus, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		manager:  manager,
		executor: executor,
		bus:      bus,
		logger:   logger.With("component", "web"),
		mux:      http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	s.unsubMessages = bus.Subscribe(func(msg comm.Message) {
		s.wsHub.Broadcast(msg)
	})

	s.routes()
	return s
}

// Stop gracefully shuts down the WebSocket hub and waits for goroutines.
func (s *Server) Stop() {
	if s.unsubMessages != nil {
		s.unsubMessages()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/sequences", s.handleAPIListSequences)
	s.mux.HandleFunc("GET /api/sequences/{id}", s.handleAPIGetSequence)
	s.mux.HandleFunc("POST /api/sequences", s.handleAPISaveSequence)
	s.mux.HandleFunc("PUT /api/sequences/{id}", s.handleAPISaveSequence)
	s.mux.HandleFunc("DELETE /api/sequences/{id}", s.handleAPIDeleteSequence)

	s.mux.HandleFunc("POST /api/sequences/{id}/run", s.handleAPIRunSequence)
	s.mux.HandleFunc("GET /api/sequences/{id}/runs", s.handleAPIListRuns)
	s.mux.HandleFunc("POST /api/stop", s.handleAPIStop)
	s.mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	// WebSocket
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler, applying auth and CORS middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS: check Origin on mutating requests to prevent CSRF.
	if len(s.allowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if r.Method == http.MethodOptions {
				// Preflight request.
				if s.isOriginAllowed(origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.WriteHeader(http.StatusNoContent)
					return
				}
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			if r.Method != http.MethodGet {
				if !s.isOriginAllowed(origin) {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
		}
	}

	if s.apiKey != "" {
		// Only require API key for /api/ endpoints. The WebSocket endpoint is
		// not API-key-protected because browsers cannot send custom headers on
		// the upgrade request.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
	}
	s.mux.ServeHTTP(w, r)
}

// isOriginAllowed checks if the origin matches any allowed origin pattern.
func (s *Server) isOriginAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
