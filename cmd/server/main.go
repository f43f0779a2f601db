// Package main provides the API server entry point for the profile
// enricher service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/profile-enricher/internal/api"
	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/instrument"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/orchestrator"
	"github.com/profile-enricher/internal/queue"
	"github.com/profile-enricher/internal/registry"
	"github.com/profile-enricher/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.LevelError, logging.FormatText).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Starting profile enricher API server")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Postgres")
		os.Exit(1)
	}
	defer postgres.Close()

	// Connect to Redis
	redisClient, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		os.Exit(1)
	}
	defer redisClient.Close()

	logger.Info("Database connections established")

	// Repositories and queue
	subjectRepo := storage.NewSubjectRepository(postgres)
	recordRepo := storage.NewServiceRecordRepository(postgres)
	jobQueue := queue.New(redisClient)

	// Service registry
	table, err := registry.FromConfig(&cfg.Services)
	if err != nil {
		logger.WithError(err).Error("Failed to build service registry")
		os.Exit(1)
	}
	logger.WithField("services", table.Kinds()).Info("Service registry built")

	orch := orchestrator.New(recordRepo, subjectRepo, jobQueue, table, logger)

	// Optional ClickHouse event log backs the worker-times endpoint.
	var timer api.WorkerTimer
	if cfg.Instrument.ClickHouse.Host != "" {
		clickhouseDB, err := storage.NewClickHouseDB(&cfg.Instrument.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, worker-times endpoint disabled")
		} else {
			defer clickhouseDB.Close()
			eventLog, err := instrument.NewEventLog(context.Background(), clickhouseDB, logger)
			if err != nil {
				logger.WithError(err).Warn("Failed to initialize event log")
			} else {
				timer = eventLog
			}
		}
	}

	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		subjectRepo, recordRepo, orch, jobQueue, timer, promhttp.Handler(), logger,
	)

	// Serve until interrupted
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	case sig := <-quit:
		logger.WithField("signal", sig.String()).Info("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
