package relay

import (
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/pkg/models"
)

// StartRequest is the body of POST /api/investigations.
type StartRequest struct {
	Company     string `json:"company"`
	Bill        string `json:"bill"`
	Description string `json:"description,omitempty"`
}

// CurrentResponse is the body of GET /api/investigations/current.
type CurrentResponse struct {
	Active  bool            `json:"active"`
	State   session.State   `json:"state"`
	Session *models.Session `json:"session,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "starting"
	if s.ready.Load() {
		status = "ready"
	}
	conn := models.StateDisconnected
	if s.conn != nil {
		conn = s.conn.State()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"version":    s.version,
		"connection": conn,
		"clients":    s.broadcaster.ClientCount(),
		"uptime":     time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeError(w, http.StatusServiceUnavailable, "service not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Service) handleStartInvestigation(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Company = strings.TrimSpace(req.Company)
	req.Bill = strings.TrimSpace(req.Bill)
	if req.Company == "" || req.Bill == "" {
		writeError(w, http.StatusBadRequest, "company and bill are required")
		return
	}

	sess, err := s.sessions.StartSession(r.Context(), req.Company, req.Bill, req.Description)
	switch {
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("company", req.Company).Str("bill", req.Bill).Msg("Failed to start investigation")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.broadcaster.Broadcast(EventSession, sess)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Service) handleCurrentInvestigation(w http.ResponseWriter, r *http.Request) {
	resp := CurrentResponse{State: s.sessions.State()}
	if sess, active := s.sessions.ActiveSession(); sess.ID != "" {
		resp.Active = active
		resp.Session = &sess
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleStopInvestigation(w http.ResponseWriter, r *http.Request) {
	sess, _ := s.sessions.ActiveSession()
	if err := s.sessions.StopSession(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if sess.ID != "" {
		sess.Active = false
		s.broadcaster.Broadcast(EventSession, sess)
	}
	w.WriteHeader(http.StatusNoContent)
}
