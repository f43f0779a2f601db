package api

import (
	"net/http"
	"time"

	"github.com/profile-enricher/internal/models"
)

// queueDepth reports one queue's ready and delayed job counts.
type queueDepth struct {
	Ready   int64 `json:"ready"`
	Delayed int64 `json:"delayed"`
}

// handleQueueStats handles GET /api/stats/queues
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]queueDepth)
	for _, name := range []string{models.QueueServices, models.QueueRefresh} {
		ready, err := s.queues.Len(r.Context(), name)
		if err != nil {
			respondAppError(w, err)
			return
		}
		delayed, err := s.queues.DelayedLen(r.Context(), name)
		if err != nil {
			respondAppError(w, err)
			return
		}
		depths[name] = queueDepth{Ready: ready, Delayed: delayed}
	}

	respondJSON(w, http.StatusOK, depths)
}

// handleWorkerTimes handles GET /api/stats/worker-times?window=24h
func (s *Server) handleWorkerTimes(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid window duration", nil)
			return
		}
		window = parsed
	}

	times, err := s.timer.WorkerTimes(r.Context(), window)
	if err != nil {
		respondAppError(w, err)
		return
	}

	formatted := make(map[string]string, len(times))
	for kind, mean := range times {
		formatted[kind] = mean.Round(time.Millisecond).String()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"window": window.String(),
		"means":  formatted,
	})
}
