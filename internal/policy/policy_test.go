package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/profile-enricher/internal/models"
)

func TestExpired(t *testing.T) {
	now := time.Now().UTC()
	interval := 24 * time.Hour

	pastDue := now.Add(-interval - time.Second)
	notYet := now.Add(-interval + time.Second)
	exactly := now.Add(-interval)

	tests := []struct {
		name          string
		lastRefreshed *time.Time
		expired       bool
	}{
		{"never refreshed", nil, false},
		{"one second past the interval", &pastDue, true},
		{"one second shy of the interval", &notYet, false},
		{"exactly at the interval", &exactly, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.ServiceRecord{LastRefreshedAt: tt.lastRefreshed}
			assert.Equal(t, tt.expired, Expired(rec, interval, now))
		})
	}
}

func TestActive(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, Active(&models.ServiceRecord{Identifier: "defunkt"}))
	assert.False(t, Active(&models.ServiceRecord{}))
	assert.False(t, Active(&models.ServiceRecord{Identifier: "defunkt", DisabledAt: &now}))
}

func TestShouldRefresh(t *testing.T) {
	now := time.Now().UTC()
	interval := time.Hour
	stale := now.Add(-2 * time.Hour)
	fresh := now.Add(-time.Minute)

	tests := []struct {
		name   string
		rec    *models.ServiceRecord
		forced bool
		want   bool
	}{
		{
			name: "stale active record",
			rec:  &models.ServiceRecord{Identifier: "x", LastRefreshedAt: &stale},
			want: true,
		},
		{
			name: "fresh active record",
			rec:  &models.ServiceRecord{Identifier: "x", LastRefreshedAt: &fresh},
			want: false,
		},
		{
			name:   "fresh record, forced",
			rec:    &models.ServiceRecord{Identifier: "x", LastRefreshedAt: &fresh},
			forced: true,
			want:   true,
		},
		{
			name:   "never refreshed, forced",
			rec:    &models.ServiceRecord{Identifier: "x"},
			forced: true,
			want:   true,
		},
		{
			name: "never refreshed, not forced",
			rec:  &models.ServiceRecord{Identifier: "x"},
			want: false,
		},
		{
			name:   "disabled record is never refreshed",
			rec:    &models.ServiceRecord{Identifier: "x", LastRefreshedAt: &stale, DisabledAt: &now},
			forced: true,
			want:   false,
		},
		{
			name:   "empty identifier is never refreshed",
			rec:    &models.ServiceRecord{LastRefreshedAt: &stale},
			forced: true,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRefresh(tt.rec, interval, now, tt.forced))
		})
	}
}
