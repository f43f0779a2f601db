// Package registry holds the static table of registered service
// kinds. The table is built once at startup and never mutated, and
// every descriptor carries the capabilities the orchestration core
// needs: the data source, the refresh interval, the queue name, and
// the identifier accessor for subjects.
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
	"github.com/profile-enricher/internal/source"
)

// Descriptor describes one registered service kind.
type Descriptor struct {
	Kind models.ServiceKind

	// RefreshInterval is how long a successful refresh stays fresh.
	RefreshInterval time.Duration

	// Queue is the named queue refresh jobs for this kind run on.
	Queue string

	// Source fetches the external account data.
	Source source.DataSource

	// Identifier extracts the subject's handle for this service.
	// Resolved once at registration, never by name at call time.
	Identifier func(*models.Subject) string
}

// Table is an immutable ServiceKind to Descriptor mapping.
type Table struct {
	descriptors map[models.ServiceKind]*Descriptor
}

// NewTable builds a table from the given descriptors. Duplicate kinds
// and incomplete descriptors are configuration mistakes and fail
// construction.
func NewTable(descriptors ...*Descriptor) (*Table, error) {
	table := &Table{descriptors: make(map[models.ServiceKind]*Descriptor, len(descriptors))}

	for _, d := range descriptors {
		if d.Kind == "" {
			return nil, fmt.Errorf("descriptor has no kind")
		}
		if d.Source == nil {
			return nil, fmt.Errorf("descriptor %q has no data source", d.Kind)
		}
		if d.Identifier == nil {
			return nil, fmt.Errorf("descriptor %q has no identifier accessor", d.Kind)
		}
		if d.RefreshInterval <= 0 {
			return nil, fmt.Errorf("descriptor %q has no refresh interval", d.Kind)
		}
		if d.Queue == "" {
			d.Queue = models.QueueRefresh
		}
		if _, dup := table.descriptors[d.Kind]; dup {
			return nil, fmt.Errorf("descriptor %q registered twice", d.Kind)
		}
		table.descriptors[d.Kind] = d
	}

	return table, nil
}

// Lookup returns the descriptor for a kind, or a missing-service error
// when the kind was never registered.
func (t *Table) Lookup(kind models.ServiceKind) (*Descriptor, error) {
	if d, ok := t.descriptors[kind]; ok {
		return d, nil
	}
	return nil, errors.NewMissingServiceError(string(kind))
}

// Has reports whether a kind is registered, turning the lookup error
// into a boolean for callers that only need an existence check.
func (t *Table) Has(kind models.ServiceKind) bool {
	_, ok := t.descriptors[kind]
	return ok
}

// Kinds returns the registered kinds in stable order.
func (t *Table) Kinds() []models.ServiceKind {
	kinds := make([]models.ServiceKind, 0, len(t.descriptors))
	for kind := range t.descriptors {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
