// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/orchestrator"
)

// Store interfaces for dependency injection and testing

// SubjectStore defines the subject persistence operations the API uses.
type SubjectStore interface {
	Create(ctx context.Context, sub *models.Subject) error
	Find(ctx context.Context, subjectType, subjectID string) (*models.Subject, error)
	Update(ctx context.Context, sub *models.Subject) error
	Delete(ctx context.Context, subjectType, subjectID string) error
}

// RecordStore defines the service record operations the API uses.
type RecordStore interface {
	FindBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) (*models.ServiceRecord, error)
	ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*models.ServiceRecord, error)
	UpdateIdentifier(ctx context.Context, id, identifier string) error
	DeleteBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) error
	DeleteAllBySubject(ctx context.Context, subjectType, subjectID string) error
}

// QueueStats reports queue depths for the stats endpoint.
type QueueStats interface {
	Len(ctx context.Context, queueName string) (int64, error)
	DelayedLen(ctx context.Context, queueName string) (int64, error)
}

// WorkerTimer aggregates mean job durations from the event log.
type WorkerTimer interface {
	WorkerTimes(ctx context.Context, window time.Duration) (map[string]time.Duration, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	subjects   SubjectStore
	records    RecordStore
	orch       *orchestrator.Orchestrator
	queues     QueueStats
	timer      WorkerTimer
	metrics    http.Handler
	logger     *logging.Logger
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance. timer and metrics may
// be nil; their endpoints are simply not registered.
func NewServer(
	config *ServerConfig,
	subjects SubjectStore,
	records RecordStore,
	orch *orchestrator.Orchestrator,
	queues QueueStats,
	timer WorkerTimer,
	metrics http.Handler,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		subjects: subjects,
		records:  records,
		orch:     orch,
		queues:   queues,
		timer:    timer,
		metrics:  metrics,
		logger:   logger,
		config:   config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Middleware order matters: logging outermost, then recovery.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Subject lifecycle endpoints
	api.HandleFunc("/subjects", s.handleCreateSubject).Methods("POST")
	api.HandleFunc("/subjects/{type}/{id}", s.handleGetSubject).Methods("GET")
	api.HandleFunc("/subjects/{type}/{id}", s.handleUpdateSubject).Methods("PATCH", "PUT")
	api.HandleFunc("/subjects/{type}/{id}", s.handleDeleteSubject).Methods("DELETE")
	api.HandleFunc("/subjects/{type}/{id}/refresh", s.handleRefreshSubject).Methods("POST")

	// Service record endpoints
	api.HandleFunc("/subjects/{type}/{id}/services", s.handleListServices).Methods("GET")
	api.HandleFunc("/subjects/{type}/{id}/services/{kind}", s.handleGetService).Methods("GET")
	api.HandleFunc("/subjects/{type}/{id}/services/{kind}/refresh", s.handleForceRefresh).Methods("POST")
	api.HandleFunc("/subjects/{type}/{id}/services/{kind}/enable", s.handleEnableService).Methods("POST")
	api.HandleFunc("/subjects/{type}/{id}/services/{kind}/disable", s.handleDisableService).Methods("POST")

	// Stats endpoints
	api.HandleFunc("/stats/queues", s.handleQueueStats).Methods("GET")
	if s.timer != nil {
		api.HandleFunc("/stats/worker-times", s.handleWorkerTimes).Methods("GET")
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "profile-enricher",
	})
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
