// Package main provides the queue worker entry point. It consumes
// refresh and create jobs, promotes delayed retries, and runs the
// hourly bulk refresh sweep.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/profile-enricher/internal/config"
	"github.com/profile-enricher/internal/instrument"
	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/orchestrator"
	"github.com/profile-enricher/internal/queue"
	"github.com/profile-enricher/internal/registry"
	"github.com/profile-enricher/internal/storage"
	"github.com/profile-enricher/internal/sweep"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.LevelError, logging.FormatText).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))

	// run owns the connection lifetimes; returning instead of exiting
	// lets its defers close them on every failure path.
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Worker failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.WithField("concurrency", cfg.Worker.Concurrency).Info("Starting profile enricher worker")

	// An unparseable sweep spec is a configuration error; reject it
	// before opening any connections.
	if cfg.Sweep.Enabled {
		if _, err := cron.ParseStandard(cfg.Sweep.Spec); err != nil {
			return fmt.Errorf("invalid sweep cron spec %q: %w", cfg.Sweep.Spec, err)
		}
	}

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer postgres.Close()

	redisClient, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	subjectRepo := storage.NewSubjectRepository(postgres)
	recordRepo := storage.NewServiceRecordRepository(postgres)
	jobQueue := queue.New(redisClient)

	table, err := registry.FromConfig(&cfg.Services)
	if err != nil {
		return fmt.Errorf("build service registry: %w", err)
	}
	logger.WithField("services", table.Kinds()).Info("Service registry built")

	orch := orchestrator.New(recordRepo, subjectRepo, jobQueue, table, logger)

	// Observers: Prometheus always, the ClickHouse event log when
	// configured.
	observers := instrument.Fanout{instrument.NewMetrics(prometheus.DefaultRegisterer)}
	if cfg.Instrument.ClickHouse.Host != "" {
		clickhouseDB, err := storage.NewClickHouseDB(&cfg.Instrument.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, event log disabled")
		} else {
			defer clickhouseDB.Close()
			eventLog, err := instrument.NewEventLog(context.Background(), clickhouseDB, logger)
			if err != nil {
				logger.WithError(err).Warn("Failed to initialize event log")
			} else {
				observers = append(observers, eventLog)
			}
		}
	}

	performer := orchestrator.NewPerformer(orch, observers, cfg.Worker.RetryDelay, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Consumer pool over both queues; creates take priority.
	queues := []string{models.QueueServices, models.QueueRefresh}
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			consume(ctx, id, jobQueue, performer, queues, cfg.Worker.DequeueTimeout, logger)
		}(i)
	}

	// Delayed retries become ready outside the dequeue path; promote
	// them periodically.
	wg.Add(1)
	go func() {
		defer wg.Done()
		promoteDelayed(ctx, jobQueue, queues, logger)
	}()

	// Hourly bulk refresh sweep.
	var scheduler *cron.Cron
	if cfg.Sweep.Enabled {
		coordinator := sweep.New(recordRepo, orch, table, cfg.Sweep.Slots, logger)
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Sweep.Spec, func() {
			coordinator.Sweep(ctx)
		}); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
		scheduler.Start()
		logger.WithField("spec", cfg.Sweep.Spec).Info("Bulk refresh sweep scheduled")
	}

	// Prometheus endpoint.
	var metricsServer *http.Server
	if cfg.Worker.MetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: ":" + cfg.Worker.MetricsPort, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Warn("Metrics server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.WithField("signal", sig.String()).Info("Shutting down worker")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	cancel()
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	logger.Info("Worker stopped")
	return nil
}

// consume pulls jobs until the context is cancelled. Job failures are
// logged and the loop moves on; the job layer already handled retry
// and handler-chain semantics.
func consume(ctx context.Context, id int, jobQueue *queue.Queue, performer *orchestrator.Performer, queues []string, timeout time.Duration, logger *logging.Logger) {
	log := logger.WithField("worker", id)
	for {
		if ctx.Err() != nil {
			return
		}

		env, queueName, err := jobQueue.Dequeue(ctx, timeout, queues...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Error("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		if env == nil {
			continue
		}

		if err := performer.Perform(ctx, env); err != nil {
			log.WithError(err).WithFields(map[string]interface{}{
				"jobId":   env.ID,
				"jobKind": env.JobKind,
				"queue":   queueName,
			}).Error("Job failed")
		}
	}
}

// promoteDelayed moves due delayed jobs onto their ready lists every
// few seconds.
func promoteDelayed(ctx context.Context, jobQueue *queue.Queue, queues []string, logger *logging.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range queues {
				n, err := jobQueue.PromoteDelayed(ctx, name)
				if err != nil {
					if ctx.Err() == nil {
						logger.WithError(err).WithField("queue", name).Warn("Failed to promote delayed jobs")
					}
					continue
				}
				if n > 0 {
					logger.WithFields(map[string]interface{}{"queue": name, "promoted": n}).Debug("Promoted delayed jobs")
				}
			}
		}
	}
}
