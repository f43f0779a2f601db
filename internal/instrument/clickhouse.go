package instrument

import (
	"context"
	"fmt"
	"time"

	"github.com/profile-enricher/internal/logging"
	"github.com/profile-enricher/internal/storage"
)

// EventLog writes job events to ClickHouse for offline analysis of
// worker behaviour. Inserts are best-effort: a failed write is logged
// and dropped, never surfaced to the job.
type EventLog struct {
	db     *storage.ClickHouseDB
	logger *logging.Logger
}

// NewEventLog creates an event log over an existing ClickHouse
// connection and ensures the backing table exists.
func NewEventLog(ctx context.Context, db *storage.ClickHouseDB, logger *logging.Logger) (*EventLog, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS job_events (
			name         String,
			kind         LowCardinality(String),
			subject_type LowCardinality(String),
			subject_id   String,
			started_at   DateTime64(3),
			finished_at  DateTime64(3),
			duration_ms  UInt64,
			outcome      LowCardinality(String),
			error        String
		) ENGINE = MergeTree()
		ORDER BY (kind, started_at)
	`
	if err := db.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create job_events table: %w", err)
	}
	return &EventLog{db: db, logger: logger}, nil
}

// Publish implements Observer.
func (l *EventLog) Publish(ctx context.Context, e Event) {
	query := `
		INSERT INTO job_events
			(name, kind, subject_type, subject_id, started_at, finished_at, duration_ms, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := l.db.Exec(ctx, query,
		e.Name,
		string(e.Kind),
		e.SubjectType,
		e.SubjectID,
		e.StartedAt,
		e.FinishedAt,
		uint64(e.Duration().Milliseconds()),
		e.Outcome,
		e.Error,
	)
	if err != nil {
		l.logger.WithError(err).WithField("name", e.Name).Warn("Failed to record job event")
	}
}

// WorkerTimes returns the mean job duration per service kind over the
// given window. Slow kinds surface here first when an upstream API is
// degrading.
func (l *EventLog) WorkerTimes(ctx context.Context, window time.Duration) (map[string]time.Duration, error) {
	query := `
		SELECT kind, avg(duration_ms) AS mean_ms
		FROM job_events
		WHERE started_at >= now() - INTERVAL ? SECOND
		GROUP BY kind
	`
	rows, err := l.db.Conn().Query(ctx, query, int64(window.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to query worker times: %w", err)
	}
	defer rows.Close()

	times := make(map[string]time.Duration)
	for rows.Next() {
		var kind string
		var meanMs float64
		if err := rows.Scan(&kind, &meanMs); err != nil {
			return nil, fmt.Errorf("failed to scan worker time row: %w", err)
		}
		times[kind] = time.Duration(meanMs * float64(time.Millisecond))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read worker time rows: %w", err)
	}
	return times, nil
}
