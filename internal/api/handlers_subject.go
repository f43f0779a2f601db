package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

// handleCreateSubject handles POST /api/subjects - register a subject
// and schedule creation of its service records.
func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string            `json:"id"`
		Type        string            `json:"type"`
		Name        string            `json:"name"`
		Identifiers map[string]string `json:"identifiers"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Subject type is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	identifiers, err := s.parseIdentifiers(req.Identifiers)
	if err != nil {
		respondAppError(w, err)
		return
	}

	// Probe every supplied identifier before the save; a degraded
	// upstream fails open inside ValidateIdentifier.
	for kind, identifier := range identifiers {
		if err := s.orch.ValidateIdentifier(r.Context(), kind, identifier); err != nil {
			respondAppError(w, err)
			return
		}
	}

	sub := &models.Subject{
		ID:          req.ID,
		Type:        req.Type,
		Name:        req.Name,
		Identifiers: identifiers,
	}
	if err := s.subjects.Create(r.Context(), sub); err != nil {
		respondAppError(w, err)
		return
	}

	if err := s.orch.EnqueueCreateServices(r.Context(), sub); err != nil {
		s.logger.WithError(err).WithField("subjectId", sub.ID).Error("Failed to enqueue service creation")
	}

	respondJSON(w, http.StatusCreated, sub)
}

// handleGetSubject handles GET /api/subjects/{type}/{id}
func (s *Server) handleGetSubject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sub, err := s.subjects.Find(r.Context(), vars["type"], vars["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sub)
}

// handleUpdateSubject handles PATCH /api/subjects/{type}/{id}.
// Changed identifiers are re-validated and their records re-pointed;
// unchanged ones are left alone, probe included.
func (s *Server) handleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req struct {
		Name        *string           `json:"name"`
		Identifiers map[string]string `json:"identifiers"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	sub, err := s.subjects.Find(r.Context(), vars["type"], vars["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	identifiers, err := s.parseIdentifiers(req.Identifiers)
	if err != nil {
		respondAppError(w, err)
		return
	}

	changed := make(map[models.ServiceKind]string)
	for kind, identifier := range identifiers {
		if sub.Identifier(kind) == identifier {
			continue
		}
		if identifier != "" {
			if err := s.orch.ValidateIdentifier(r.Context(), kind, identifier); err != nil {
				respondAppError(w, err)
				return
			}
		}
		changed[kind] = identifier
	}

	if req.Name != nil {
		sub.Name = *req.Name
	}
	if sub.Identifiers == nil {
		sub.Identifiers = make(map[models.ServiceKind]string)
	}
	for kind, identifier := range changed {
		sub.Identifiers[kind] = identifier
	}

	if err := s.subjects.Update(r.Context(), sub); err != nil {
		respondAppError(w, err)
		return
	}

	s.syncRecords(r, sub, changed)

	respondJSON(w, http.StatusOK, sub)
}

// syncRecords re-points existing service records at their subject's
// changed identifiers and schedules a refresh for each; kinds without
// a record yet get one the usual way, and a cleared identifier
// destroys the record. Best effort: a queue or store hiccup here is
// logged, the subject update already succeeded.
func (s *Server) syncRecords(r *http.Request, sub *models.Subject, changed map[models.ServiceKind]string) {
	ctx := r.Context()

	for kind, identifier := range changed {
		if identifier == "" {
			if err := s.records.DeleteBySubject(ctx, kind, sub.Type, sub.ID); err != nil {
				s.logger.WithError(err).WithField("kind", kind).Error("Failed to delete record for cleared identifier")
			}
			continue
		}

		rec, err := s.records.FindBySubject(ctx, kind, sub.Type, sub.ID)
		if err != nil {
			if !apperrors.IsNotFound(err) {
				s.logger.WithError(err).WithField("kind", kind).Error("Failed to load record for identifier change")
			}
			continue
		}

		if err := s.records.UpdateIdentifier(ctx, rec.ID, identifier); err != nil {
			s.logger.WithError(err).WithField("recordId", rec.ID).Error("Failed to update record identifier")
			continue
		}
		rec.Identifier = identifier

		if _, err := s.orch.EnqueueRefresh(ctx, rec); err != nil {
			s.logger.WithError(err).WithField("recordId", rec.ID).Error("Failed to enqueue refresh after identifier change")
		}
	}

	if _, err := s.orch.CreateServicesFor(ctx, sub); err != nil {
		s.logger.WithError(err).WithField("subjectId", sub.ID).Error("Failed to create records for new identifiers")
	}
}

// handleDeleteSubject handles DELETE /api/subjects/{type}/{id} -
// removes the subject and all of its service records.
func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	subjectType, subjectID := vars["type"], vars["id"]

	if _, err := s.subjects.Find(r.Context(), subjectType, subjectID); err != nil {
		respondAppError(w, err)
		return
	}

	if err := s.records.DeleteAllBySubject(r.Context(), subjectType, subjectID); err != nil {
		respondAppError(w, err)
		return
	}
	if err := s.subjects.Delete(r.Context(), subjectType, subjectID); err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// handleRefreshSubject handles POST /api/subjects/{type}/{id}/refresh
// - enqueues a refresh for every active service record of the subject.
func (s *Server) handleRefreshSubject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	records, err := s.records.ListBySubject(r.Context(), vars["type"], vars["id"])
	if err != nil {
		respondAppError(w, err)
		return
	}

	enqueued := 0
	for _, rec := range records {
		ok, err := s.orch.EnqueueRefresh(r.Context(), rec)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if ok {
			enqueued++
		}
	}

	respondJSON(w, http.StatusAccepted, map[string]int{"enqueued": enqueued})
}

// parseIdentifiers converts the request's identifier map, rejecting
// unregistered service kinds.
func (s *Server) parseIdentifiers(raw map[string]string) (map[models.ServiceKind]string, error) {
	identifiers := make(map[models.ServiceKind]string, len(raw))
	for name, identifier := range raw {
		kind := models.ServiceKind(name)
		if !s.orch.Table().Has(kind) {
			return nil, apperrors.NewMissingServiceError(name)
		}
		identifiers[kind] = identifier
	}
	return identifiers, nil
}
