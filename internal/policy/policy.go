// Package policy decides whether a service record is due for a
// refresh. Staleness is time-based per service kind; the forced path
// bypasses it. An inactive record is never refreshed, forced or not.
package policy

import (
	"time"

	"github.com/profile-enricher/internal/models"
)

// Expired reports whether the record's last successful refresh is at
// least one interval old. A record that has never been refreshed is
// not expired: its initial refresh is driven by the create trigger,
// not by this policy.
func Expired(rec *models.ServiceRecord, interval time.Duration, now time.Time) bool {
	if rec.LastRefreshedAt == nil {
		return false
	}
	return !rec.LastRefreshedAt.After(now.Add(-interval))
}

// Active reports whether the record may be refreshed at all: it has an
// identifier and has not been administratively disabled.
func Active(rec *models.ServiceRecord) bool {
	return rec.Identifier != "" && !rec.Disabled()
}

// ShouldRefresh combines the activity and staleness checks. forced
// bypasses staleness but never the activity check.
func ShouldRefresh(rec *models.ServiceRecord, interval time.Duration, now time.Time, forced bool) bool {
	return Active(rec) && (forced || Expired(rec, interval, now))
}
