package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/profile-enricher/internal/errors"
	"github.com/profile-enricher/internal/models"
)

type stubSource struct{ name string }

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Fetch(ctx context.Context, identifier string) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}
func (s *stubSource) Probe(ctx context.Context, identifier string) error { return nil }

func descriptor(kind models.ServiceKind) *Descriptor {
	return &Descriptor{
		Kind:            kind,
		RefreshInterval: time.Hour,
		Source:          &stubSource{name: string(kind)},
		Identifier: func(s *models.Subject) string {
			return s.Identifier(kind)
		},
	}
}

func TestNewTable(t *testing.T) {
	table, err := NewTable(descriptor(models.KindGitHub), descriptor(models.KindTwitter))
	require.NoError(t, err)

	assert.True(t, table.Has(models.KindGitHub))
	assert.True(t, table.Has(models.KindTwitter))
	assert.False(t, table.Has(models.KindDribbble))
	assert.Equal(t, []models.ServiceKind{models.KindGitHub, models.KindTwitter}, table.Kinds())
}

func TestNewTable_RejectsDuplicates(t *testing.T) {
	_, err := NewTable(descriptor(models.KindGitHub), descriptor(models.KindGitHub))
	assert.Error(t, err)
}

func TestNewTable_RejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Descriptor)
	}{
		{"missing kind", func(d *Descriptor) { d.Kind = "" }},
		{"missing source", func(d *Descriptor) { d.Source = nil }},
		{"missing identifier accessor", func(d *Descriptor) { d.Identifier = nil }},
		{"missing interval", func(d *Descriptor) { d.RefreshInterval = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := descriptor(models.KindGitHub)
			tt.mutate(d)
			_, err := NewTable(d)
			assert.Error(t, err)
		})
	}
}

func TestTable_Lookup(t *testing.T) {
	table, err := NewTable(descriptor(models.KindGitHub))
	require.NoError(t, err)

	d, err := table.Lookup(models.KindGitHub)
	require.NoError(t, err)
	assert.Equal(t, models.KindGitHub, d.Kind)
	assert.Equal(t, models.QueueRefresh, d.Queue, "default queue applied")

	_, err = table.Lookup("nyancat")
	require.Error(t, err)
	assert.True(t, errors.IsMissingService(err))
}

func TestDescriptor_IdentifierAccessor(t *testing.T) {
	table, err := NewTable(descriptor(models.KindGitHub))
	require.NoError(t, err)

	d, err := table.Lookup(models.KindGitHub)
	require.NoError(t, err)

	sub := &models.Subject{Identifiers: map[models.ServiceKind]string{models.KindGitHub: "mojombo"}}
	assert.Equal(t, "mojombo", d.Identifier(sub))
}
