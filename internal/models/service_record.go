// Package models defines the persisted entities of the enrichment
// service: subjects, their per-service records, and the queue messages
// that move refresh work between processes.
package models

import (
	"encoding/json"
	"time"
)

// ServiceKind identifies a concrete external service.
type ServiceKind string

const (
	KindGitHub   ServiceKind = "github"
	KindTwitter  ServiceKind = "twitter"
	KindDribbble ServiceKind = "dribbble"
	KindLinkedIn ServiceKind = "linkedin"
)

// ServiceRecord is the persisted snapshot of one external account for
// one subject. The work-state timestamps bound the current or most
// recent refresh cycle; LastRefreshedAt only moves on a successful
// refresh, so a cycle can finish without refreshing.
type ServiceRecord struct {
	ID          string      `json:"id" db:"id"`
	Kind        ServiceKind `json:"kind" db:"kind"`
	SubjectType string      `json:"subjectType" db:"subject_type"`
	SubjectID   string      `json:"subjectId" db:"subject_id"`
	Identifier  string      `json:"identifier" db:"identifier"`

	StartedWorkingAt  *time.Time `json:"startedWorkingAt,omitempty" db:"started_working_at"`
	FinishedWorkingAt *time.Time `json:"finishedWorkingAt,omitempty" db:"finished_working_at"`
	LastRefreshedAt   *time.Time `json:"lastRefreshedAt,omitempty" db:"last_refreshed_at"`
	DisabledAt        *time.Time `json:"disabledAt,omitempty" db:"disabled_at"`

	// Payload holds the kind-specific profile snapshot (JSONB).
	Payload json.RawMessage `json:"payload,omitempty" db:"payload"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Working reports whether a refresh cycle is currently open. A record
// that never started working is not working; one that started and
// never finished is; otherwise the newer of the two timestamps wins.
func (r *ServiceRecord) Working() bool {
	if r.StartedWorkingAt == nil {
		return false
	}
	if r.FinishedWorkingAt == nil {
		return true
	}
	return r.StartedWorkingAt.After(*r.FinishedWorkingAt)
}

// Finished is the logical negation of Working.
func (r *ServiceRecord) Finished() bool {
	return !r.Working()
}

// Disabled reports whether the record has been administratively
// disabled. Disabled records are never auto-selected for refresh.
func (r *ServiceRecord) Disabled() bool {
	return r.DisabledAt != nil
}
