// Package source contains the data-source clients that fetch external
// account data for each service kind. Every client maps upstream
// failures onto the shared error taxonomy so the job layer can decide
// between retrying, failing open, and propagating.
package source

import (
	"context"
	"encoding/json"
)

// DataSource fetches the external account payload for one service
// kind. Implementations return the kind-specific payload serialized as
// JSON; the orchestration core never looks inside it.
type DataSource interface {
	// Name identifies the source in logs and error details.
	Name() string

	// Fetch retrieves the full account snapshot for the identifier.
	Fetch(ctx context.Context, identifier string) (json.RawMessage, error)

	// Probe checks that the identifier corresponds to a real account
	// without fetching the full snapshot. It returns a not-found error
	// when the account does not exist.
	Probe(ctx context.Context, identifier string) error
}
