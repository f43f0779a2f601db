package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

// SubjectRepository persists subjects. Subjects are keyed by
// (type, id) so multiple host entity kinds can share the table.
type SubjectRepository struct {
	db *PostgresDB
}

// NewSubjectRepository creates a subject repository.
func NewSubjectRepository(db *PostgresDB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// Create inserts a new subject.
func (r *SubjectRepository) Create(ctx context.Context, sub *models.Subject) error {
	identifiers, err := json.Marshal(sub.Identifiers)
	if err != nil {
		return apperrors.NewDatabaseError("marshal subject identifiers", err)
	}

	query := `
		INSERT INTO subjects (type, id, name, identifiers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`

	if _, err := r.db.Pool().Exec(ctx, query, sub.Type, sub.ID, sub.Name, identifiers); err != nil {
		return apperrors.NewDatabaseError("create subject", err)
	}
	return nil
}

// Find retrieves a subject by type and ID.
func (r *SubjectRepository) Find(ctx context.Context, subjectType, subjectID string) (*models.Subject, error) {
	query := `
		SELECT type, id, name, identifiers, created_at, updated_at
		FROM subjects
		WHERE type = $1 AND id = $2
	`

	var sub models.Subject
	var identifiers []byte
	err := r.db.Pool().QueryRow(ctx, query, subjectType, subjectID).Scan(
		&sub.Type,
		&sub.ID,
		&sub.Name,
		&identifiers,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("subject", subjectType+"/"+subjectID)
		}
		return nil, apperrors.NewDatabaseError("find subject", err)
	}

	if len(identifiers) > 0 {
		if err := json.Unmarshal(identifiers, &sub.Identifiers); err != nil {
			return nil, apperrors.NewDatabaseError("unmarshal subject identifiers", err)
		}
	}

	return &sub, nil
}

// Update stores the subject's mutable fields.
func (r *SubjectRepository) Update(ctx context.Context, sub *models.Subject) error {
	identifiers, err := json.Marshal(sub.Identifiers)
	if err != nil {
		return apperrors.NewDatabaseError("marshal subject identifiers", err)
	}

	query := `
		UPDATE subjects
		SET name = $3, identifiers = $4, updated_at = now()
		WHERE type = $1 AND id = $2
	`

	tag, err := r.db.Pool().Exec(ctx, query, sub.Type, sub.ID, sub.Name, identifiers)
	if err != nil {
		return apperrors.NewDatabaseError("update subject", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("subject", sub.Type+"/"+sub.ID)
	}
	return nil
}

// Delete removes a subject. Service records cascade via the schema's
// foreign key.
func (r *SubjectRepository) Delete(ctx context.Context, subjectType, subjectID string) error {
	query := `DELETE FROM subjects WHERE type = $1 AND id = $2`

	tag, err := r.db.Pool().Exec(ctx, query, subjectType, subjectID)
	if err != nil {
		return apperrors.NewDatabaseError("delete subject", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("subject", subjectType+"/"+subjectID)
	}
	return nil
}
