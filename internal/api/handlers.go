package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/FairForge/drctl/internal/dr"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := queryLimit(r, 100)

	history, err := s.controller.HealthHistory(id, limit)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"region":  id,
		"history": history,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.controller.FailoverEvents(queryLimit(r, 10)),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": s.controller.Alerts(queryLimit(r, 20)),
	})
}

type failoverRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	var req failoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("api: target required"))
		return
	}

	err := s.controller.TriggerManualFailover(r.Context(), req.Target, req.Reason)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, s.controller.Status())
	case errors.Is(err, dr.ErrUnknownRegion):
		s.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, dr.ErrTargetNotHealthy),
		errors.Is(err, dr.ErrTargetIsPrimary),
		errors.Is(err, dr.ErrTransitionInFlight):
		s.writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("manual failover failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

type chaosRequest struct {
	Target string `json:"target"`
}

func (s *Server) handleChaosEnable(w http.ResponseWriter, r *http.Request) {
	var req chaosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("api: target required"))
		return
	}
	if err := s.controller.EnableChaosMode(req.Target); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"chaos_target": req.Target})
}

func (s *Server) handleChaosDisable(w http.ResponseWriter, _ *http.Request) {
	s.controller.DisableChaosMode()
	s.writeJSON(w, http.StatusOK, map[string]string{"chaos_target": ""})
}

type maintenanceRequest struct {
	Region  string `json:"region"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Region == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("api: region required"))
		return
	}

	err := s.controller.SetMaintenance(req.Region, req.Enabled)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, s.controller.Status())
	case errors.Is(err, dr.ErrUnknownRegion):
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.writeError(w, http.StatusConflict, err)
	}
}

func (s *Server) handleMonitoringStart(w http.ResponseWriter, _ *http.Request) {
	// The loop outlives the request; it stops via the stop endpoint or
	// controller shutdown, never via request cancellation.
	if err := s.controller.StartHealthMonitoring(context.Background()); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"monitoring": true})
}

func (s *Server) handleMonitoringStop(w http.ResponseWriter, _ *http.Request) {
	s.controller.StopHealthMonitoring()
	s.writeJSON(w, http.StatusOK, map[string]bool{"monitoring": false})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
