// Package relay serves the communication stream to browsers over SSE and
// exposes investigation control endpoints.
package relay

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// subscriberID is the id the relay registers on the session bus.
const subscriberID = "relay"

// Sessions is the orchestrator surface the relay drives.
type Sessions interface {
	StartSession(ctx context.Context, company, bill, description string) (models.Session, error)
	StopSession(ctx context.Context) error
	ActiveSession() (models.Session, bool)
	State() session.State
	Subscribe(id string, fn session.Subscriber)
	Unsubscribe(id string)
}

// Connection reports the backend connection state.
type Connection interface {
	State() models.ConnectionState
}

// Service is the HTTP relay.
type Service struct {
	version     string
	sessions    Sessions
	conn        Connection
	broadcaster *Broadcaster
	router      chi.Router
	serverMu    sync.Mutex
	server      *http.Server
	closed      bool
	ready       atomic.Bool
	startTime   time.Time
}

// NewService creates the relay and subscribes it to the session bus.
func NewService(version string, sessions Sessions, conn Connection) *Service {
	svc := &Service{
		version:     version,
		sessions:    sessions,
		conn:        conn,
		broadcaster: NewBroadcaster(),
		router:      chi.NewRouter(),
		startTime:   time.Now(),
	}
	svc.setupRoutes()
	sessions.Subscribe(subscriberID, func(c models.Communication) {
		svc.broadcaster.Broadcast(EventCommunication, c)
	})
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/ready", s.handleReady)
	s.router.Get("/api/events", s.broadcaster.HandleSSE)

	s.router.Route("/api/investigations", func(r chi.Router) {
		r.Use(s.requireReady)
		r.Post("/", s.handleStartInvestigation)
		r.Get("/current", s.handleCurrentInvestigation)
		r.Delete("/current", s.handleStopInvestigation)
	})
}

// Handler returns the HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Broadcaster returns the SSE broadcaster.
func (s *Service) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// MarkReady lets investigation endpoints accept requests.
func (s *Service) MarkReady() {
	s.ready.Store(true)
}

// ConnectionChanged broadcasts a backend connection state change.
func (s *Service) ConnectionChanged(state models.ConnectionState) {
	s.broadcaster.Broadcast(EventConnection, map[string]string{"state": string(state)})
}

// ListenAndServe serves on addr until Shutdown.
func (s *Service) ListenAndServe(addr string) error {
	s.serverMu.Lock()
	if s.closed {
		s.serverMu.Unlock()
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.server = server
	s.serverMu.Unlock()

	log.Info().Str("addr", addr).Msg("Relay listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server and detaches from the session bus.
func (s *Service) Shutdown(ctx context.Context) error {
	s.sessions.Unsubscribe(subscriberID)

	s.serverMu.Lock()
	s.closed = true
	server := s.server
	s.serverMu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// requireReady rejects requests until MarkReady is called.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
