package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

// ServiceRecordRepository persists service records. One row per
// subject per service kind; the work-state columns are written with
// single-field updates so concurrent cycles never clobber each other's
// payloads.
type ServiceRecordRepository struct {
	db *PostgresDB
}

// NewServiceRecordRepository creates a service record repository.
func NewServiceRecordRepository(db *PostgresDB) *ServiceRecordRepository {
	return &ServiceRecordRepository{db: db}
}

const recordColumns = `
	id, kind, subject_type, subject_id, identifier,
	started_working_at, finished_working_at, last_refreshed_at, disabled_at,
	payload, created_at, updated_at
`

func scanRecord(row pgx.Row) (*models.ServiceRecord, error) {
	var rec models.ServiceRecord
	err := row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.SubjectType,
		&rec.SubjectID,
		&rec.Identifier,
		&rec.StartedWorkingAt,
		&rec.FinishedWorkingAt,
		&rec.LastRefreshedAt,
		&rec.DisabledAt,
		&rec.Payload,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new service record.
func (r *ServiceRecordRepository) Create(ctx context.Context, rec *models.ServiceRecord) error {
	query := `
		INSERT INTO service_records (
			id, kind, subject_type, subject_id, identifier,
			started_working_at, finished_working_at, last_refreshed_at, disabled_at,
			payload, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`

	_, err := r.db.Pool().Exec(ctx, query,
		rec.ID,
		rec.Kind,
		rec.SubjectType,
		rec.SubjectID,
		rec.Identifier,
		rec.StartedWorkingAt,
		rec.FinishedWorkingAt,
		rec.LastRefreshedAt,
		rec.DisabledAt,
		rec.Payload,
	)
	if err != nil {
		return apperrors.NewDatabaseError("create service record", err)
	}

	return nil
}

// FindBySubject retrieves the record of the given kind owned by the
// subject.
func (r *ServiceRecordRepository) FindBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) (*models.ServiceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM service_records
		WHERE kind = $1 AND subject_type = $2 AND subject_id = $3
	`

	rec, err := scanRecord(r.db.Pool().QueryRow(ctx, query, kind, subjectType, subjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("service record", string(kind)+"/"+subjectType+"/"+subjectID)
		}
		return nil, apperrors.NewDatabaseError("find service record", err)
	}

	return rec, nil
}

// ListBySubject retrieves every record owned by the subject.
func (r *ServiceRecordRepository) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]*models.ServiceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM service_records
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY kind
	`

	rows, err := r.db.Pool().Query(ctx, query, subjectType, subjectID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list service records", err)
	}
	defer rows.Close()

	var records []*models.ServiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan service record", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate service records", err)
	}

	return records, nil
}

// SetStartedWorking opens a work cycle by stamping started_working_at.
// The returned bool reports whether the record still existed.
func (r *ServiceRecordRepository) SetStartedWorking(ctx context.Context, id string, t time.Time) (bool, error) {
	query := `UPDATE service_records SET started_working_at = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, id, t)
	if err != nil {
		return false, apperrors.NewDatabaseError("mark record working", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetFinishedWorking closes the work cycle. A record deleted mid-cycle
// yields found=false, which callers treat as a no-op.
func (r *ServiceRecordRepository) SetFinishedWorking(ctx context.Context, id string, t time.Time) (bool, error) {
	query := `UPDATE service_records SET finished_working_at = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, id, t)
	if err != nil {
		return false, apperrors.NewDatabaseError("mark record finished", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetRefreshed stores a successful refresh: the new payload and the
// last_refreshed_at stamp together.
func (r *ServiceRecordRepository) SetRefreshed(ctx context.Context, id string, t time.Time, payload []byte) (bool, error) {
	query := `
		UPDATE service_records
		SET last_refreshed_at = $2, payload = $3, updated_at = now()
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, id, t, payload)
	if err != nil {
		return false, apperrors.NewDatabaseError("store refreshed payload", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetDisabledAt sets or clears the administrative disable stamp.
func (r *ServiceRecordRepository) SetDisabledAt(ctx context.Context, id string, t *time.Time) error {
	query := `UPDATE service_records SET disabled_at = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, id, t)
	if err != nil {
		return apperrors.NewDatabaseError("set record disabled stamp", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("service record", id)
	}
	return nil
}

// UpdateIdentifier stores a changed identifier on the record.
func (r *ServiceRecordRepository) UpdateIdentifier(ctx context.Context, id, identifier string) error {
	query := `UPDATE service_records SET identifier = $2, updated_at = now() WHERE id = $1`

	tag, err := r.db.Pool().Exec(ctx, query, id, identifier)
	if err != nil {
		return apperrors.NewDatabaseError("update record identifier", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("service record", id)
	}
	return nil
}

// staleFilter selects enabled, finished records of a kind whose last
// successful refresh is at or past the cutoff. "Finished" mirrors the
// in-memory predicate: never started, or finished at or after start.
const staleFilter = `
	kind = $1
	AND identifier <> ''
	AND disabled_at IS NULL
	AND last_refreshed_at IS NOT NULL
	AND last_refreshed_at <= $2
	AND (started_working_at IS NULL
		OR (finished_working_at IS NOT NULL AND finished_working_at >= started_working_at))
`

// CountStale counts the full stale candidate set for a kind.
func (r *ServiceRecordRepository) CountStale(ctx context.Context, kind models.ServiceKind, cutoff time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM service_records WHERE ` + staleFilter

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, kind, cutoff).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count stale records", err)
	}
	return count, nil
}

// FindStale returns up to limit stale candidates, oldest refresh
// first. Ties break on insertion order via created_at.
func (r *ServiceRecordRepository) FindStale(ctx context.Context, kind models.ServiceKind, cutoff time.Time, limit int) ([]*models.ServiceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM service_records
		WHERE ` + staleFilter + `
		ORDER BY last_refreshed_at ASC, created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool().Query(ctx, query, kind, cutoff, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find stale records", err)
	}
	defer rows.Close()

	var records []*models.ServiceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan stale record", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate stale records", err)
	}

	return records, nil
}

// DeleteBySubject removes a subject's record for one kind. Used when
// the subject clears that identifier.
func (r *ServiceRecordRepository) DeleteBySubject(ctx context.Context, kind models.ServiceKind, subjectType, subjectID string) error {
	query := `DELETE FROM service_records WHERE kind = $1 AND subject_type = $2 AND subject_id = $3`

	if _, err := r.db.Pool().Exec(ctx, query, kind, subjectType, subjectID); err != nil {
		return apperrors.NewDatabaseError("delete subject service record", err)
	}
	return nil
}

// DeleteAllBySubject removes every record a subject owns. Used on
// subject destroy.
func (r *ServiceRecordRepository) DeleteAllBySubject(ctx context.Context, subjectType, subjectID string) error {
	query := `DELETE FROM service_records WHERE subject_type = $1 AND subject_id = $2`

	if _, err := r.db.Pool().Exec(ctx, query, subjectType, subjectID); err != nil {
		return apperrors.NewDatabaseError("delete subject service records", err)
	}
	return nil
}
