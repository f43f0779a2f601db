package models

import "time"

// Subject is a host entity that owns zero or more service records.
// Identifiers maps a service kind to the external account handle the
// subject supplied for it; an absent or empty entry means the subject
// does not use that service.
type Subject struct {
	ID          string                 `json:"id" db:"id"`
	Type        string                 `json:"type" db:"type"`
	Name        string                 `json:"name" db:"name"`
	Identifiers map[ServiceKind]string `json:"identifiers" db:"identifiers"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Identifier returns the subject's handle for the given service kind,
// or the empty string when none is set.
func (s *Subject) Identifier(kind ServiceKind) string {
	if s.Identifiers == nil {
		return ""
	}
	return s.Identifiers[kind]
}
