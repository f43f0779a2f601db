// Package sweep schedules the periodic bulk refresh. Each run selects
// the hour's share of the stale backlog per service kind and enqueues
// a refresh job for every selected record.
package sweep

import (
	"context"
	"time"

	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/partition"
	"github.com/profile-enricher/internal/registry"
)

// StaleStore is the stale-record query surface of the record
// repository.
type StaleStore interface {
	CountStale(ctx context.Context, kind models.ServiceKind, cutoff time.Time) (int, error)
	FindStale(ctx context.Context, kind models.ServiceKind, cutoff time.Time, limit int) ([]*models.ServiceRecord, error)
}

// Scheduler submits refresh jobs for records.
type Scheduler interface {
	EnqueueRefresh(ctx context.Context, rec *models.ServiceRecord) (bool, error)
}

// Coordinator spreads each kind's stale backlog across the day's
// hourly slots so the sweep never dumps the whole backlog at once.
type Coordinator struct {
	store     StaleStore
	scheduler Scheduler
	table     *registry.Table
	slots     int
	logger    *logging.Logger

	now func() time.Time
}

// New creates a sweep coordinator. slots is the number of partition
// slots per sweep cycle, normally 24 for hourly sweeps over a day.
func New(store StaleStore, scheduler Scheduler, table *registry.Table, slots int, logger *logging.Logger) *Coordinator {
	if slots <= 0 {
		slots = 24
	}
	return &Coordinator{
		store:     store,
		scheduler: scheduler,
		table:     table,
		slots:     slots,
		logger:    logger,
		now:       time.Now,
	}
}

// BulkRefresh enqueues this hour's share of stale records for one
// service kind and returns how many jobs were submitted. Individual
// enqueue failures are logged and skipped; one bad record never aborts
// the batch.
func (c *Coordinator) BulkRefresh(ctx context.Context, kind models.ServiceKind) (int, error) {
	desc, err := c.table.Lookup(kind)
	if err != nil {
		return 0, err
	}

	now := c.now()
	cutoff := now.Add(-desc.RefreshInterval)

	total, err := c.store.CountStale(ctx, kind, cutoff)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}

	limit := partition.New(c.slots, total).At(now.Hour() % c.slots)
	if limit == 0 {
		return 0, nil
	}

	records, err := c.store.FindStale(ctx, kind, cutoff, limit)
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, rec := range records {
		ok, err := c.scheduler.EnqueueRefresh(ctx, rec)
		if err != nil {
			c.logger.WithError(err).
				WithFields(map[string]interface{}{"kind": kind, "recordId": rec.ID}).
				Error("Failed to enqueue stale record")
			continue
		}
		if ok {
			scheduled++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"kind":      kind,
		"backlog":   total,
		"slotLimit": limit,
		"scheduled": scheduled,
	}).Info("Bulk refresh slot swept")
	return scheduled, nil
}

// Sweep runs BulkRefresh for every registered kind. A failing kind is
// logged and does not stop the others.
func (c *Coordinator) Sweep(ctx context.Context) int {
	scheduled := 0
	for _, kind := range c.table.Kinds() {
		n, err := c.BulkRefresh(ctx, kind)
		if err != nil {
			c.logger.WithError(err).WithField("kind", kind).Error("Bulk refresh failed")
			continue
		}
		scheduled += n
	}
	return scheduled
}
