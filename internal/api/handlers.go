package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/abtest"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	RunningTests int    `json:"running_tests"`
}

// TestResponse is the response for GET /tests/{id}
type TestResponse struct {
	Test     *abtest.Test     `json:"test"`
	Variants []abtest.Variant `json:"variants"`
}

// CompleteRequest is the request body for POST /tests/{id}/complete
type CompleteRequest struct {
	WinnerID string `json:"winner_id"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := 0
	if tests, err := s.store.ListTests(); err == nil {
		for _, t := range tests {
			if t.Status == abtest.StatusRunning {
				running++
			}
		}
	}

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Version:      "0.1.0",
		Uptime:       time.Since(s.startTime).String(),
		RunningTests: running,
	})
}

// handleListTests handles GET /api/v1/tests
func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.store.ListTests()
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to list tests")
		return
	}
	s.sendJSON(w, http.StatusOK, tests)
}

// handleGetTest handles GET /api/v1/tests/{id}
func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	test, err := s.store.GetTest(id)
	if errors.Is(err, abtest.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Test not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to get test")
		return
	}

	variants, err := s.store.Variants(id)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to get variants")
		return
	}

	s.sendJSON(w, http.StatusOK, TestResponse{Test: test, Variants: variants})
}

// handleReport handles GET /api/v1/tests/{id}/report
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := s.analyzer.GenerateReport(id)
	if errors.Is(err, abtest.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Test not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

// handleSignificance handles GET /api/v1/tests/{id}/significance
func (s *Server) handleSignificance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	metric := abtest.Metric(r.URL.Query().Get("metric"))
	if metric == "" {
		metric = abtest.MetricReplies
	}

	decision, err := s.store.CheckSignificance(id, metric)
	if errors.Is(err, abtest.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Test not found")
		return
	}
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, decision)
}

// handleCompleteTest handles POST /api/v1/tests/{id}/complete
func (s *Server) handleCompleteTest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WinnerID == "" {
		s.sendError(w, http.StatusBadRequest, "winner_id is required")
		return
	}

	if err := s.store.CompleteTest(id, req.WinnerID); err != nil {
		s.transitionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "completed", "winner_id": req.WinnerID})
}

// handlePauseTest handles POST /api/v1/tests/{id}/pause
func (s *Server) handlePauseTest(w http.ResponseWriter, r *http.Request) {
	if err := s.store.PauseTest(chi.URLParam(r, "id")); err != nil {
		s.transitionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// handleResumeTest handles POST /api/v1/tests/{id}/resume
func (s *Server) handleResumeTest(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResumeTest(chi.URLParam(r, "id")); err != nil {
		s.transitionError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleSyncStatus handles GET /api/v1/sync/{campaignID}
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sync is not configured")
		return
	}

	status, err := s.coordinator.Checkpoint(chi.URLParam(r, "campaignID"))
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to read sync checkpoint")
		return
	}
	s.sendJSON(w, http.StatusOK, status)
}

// handleSyncReset handles POST /api/v1/sync/{campaignID}/reset
func (s *Server) handleSyncReset(w http.ResponseWriter, r *http.Request) {
	if s.coordinator == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sync is not configured")
		return
	}

	if err := s.coordinator.Reset(chi.URLParam(r, "campaignID")); err != nil {
		s.sendError(w, http.StatusInternalServerError, "Failed to reset sync checkpoint")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleAccountHealth handles GET /api/v1/accounts/health
func (s *Server) handleAccountHealth(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Platform client is not configured")
		return
	}

	health, err := s.orchestrator.AccountHealth(r.Context())
	if err != nil {
		s.logger.Error("account health check failed", "error", err)
		s.sendError(w, http.StatusBadGateway, "Failed to check account health")
		return
	}
	s.sendJSON(w, http.StatusOK, health)
}

func (s *Server) transitionError(w http.ResponseWriter, err error) {
	if errors.Is(err, abtest.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Test not found")
		return
	}
	s.sendError(w, http.StatusConflict, err.Error())
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
