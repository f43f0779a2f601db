package api

import (
	"net/http"

	"github.com/gorilla/mux"
	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/orchestrator"
)

// handleListServices handles GET /api/subjects/{type}/{id}/services
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	records, err := s.records.ListBySubject(r.Context(), vars["type"], vars["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// handleGetService handles GET /api/subjects/{type}/{id}/services/{kind}
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	rec, err := s.findRecord(r)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleForceRefresh handles POST
// /api/subjects/{type}/{id}/services/{kind}/refresh - runs a refresh
// cycle synchronously, bypassing the staleness check.
func (s *Server) handleForceRefresh(w http.ResponseWriter, r *http.Request) {
	rec, err := s.findRecord(r)
	if err != nil {
		respondAppError(w, err)
		return
	}

	result, err := s.orch.RefreshOnce(r.Context(), rec, true)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if result == orchestrator.ResultSkipped {
		// Forced refreshes only skip inactive records.
		respondError(w, http.StatusConflict, ErrCodeInvalidInput, "Record is disabled or has no identifier", nil)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleEnableService handles POST
// /api/subjects/{type}/{id}/services/{kind}/enable
func (s *Server) handleEnableService(w http.ResponseWriter, r *http.Request) {
	rec, err := s.findRecord(r)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := s.orch.Enable(r.Context(), rec); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// handleDisableService handles POST
// /api/subjects/{type}/{id}/services/{kind}/disable
func (s *Server) handleDisableService(w http.ResponseWriter, r *http.Request) {
	rec, err := s.findRecord(r)
	if err != nil {
		respondAppError(w, err)
		return
	}

	if err := s.orch.Disable(r.Context(), rec); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// findRecord resolves the service record addressed by the request
// path, rejecting unregistered kinds before hitting the store.
func (s *Server) findRecord(r *http.Request) (*models.ServiceRecord, error) {
	vars := mux.Vars(r)

	kind := models.ServiceKind(vars["kind"])
	if !s.orch.Table().Has(kind) {
		return nil, apperrors.NewMissingServiceError(vars["kind"])
	}

	return s.records.FindBySubject(r.Context(), kind, vars["type"], vars["id"])
}
