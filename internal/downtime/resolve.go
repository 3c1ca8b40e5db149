// Package downtime resolves production downtime events and projects the
// elapsed time of ongoing ones.
package downtime

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/models"
)

// Resolve closes an ongoing event at resumedAt. The event itself is not
// modified; the resolved copy is returned.
func Resolve(ev models.DowntimeEvent, resumedAt time.Time, notes, resolvedBy string) (models.DowntimeEvent, error) {
	if !ev.IsOngoing() {
		return ev, apperr.Invariant("resolveDowntime", "downtime event %s is already %s", ev.ID, ev.Status)
	}
	if err := checkResume(ev.StoppedAt, resumedAt); err != nil {
		return ev, err
	}
	minutes := DurationMinutes(ev.StoppedAt, resumedAt)
	out := ev
	out.Status = models.DowntimeCompleted
	out.ResumedAt = &resumedAt
	out.DurationMinutes = &minutes
	out.ResolvedBy = resolvedBy
	if notes != "" {
		out.Notes = notes
	}
	return out, nil
}

// DurationMinutes rounds the interval between stop and resume to whole minutes.
func DurationMinutes(stoppedAt, resumedAt time.Time) int {
	return int(math.Round(float64(resumedAt.Sub(stoppedAt)) / float64(time.Minute)))
}

// Elapsed returns how long an ongoing event has been running at now. It
// returns false for resolved events.
func Elapsed(ev models.DowntimeEvent, now time.Time) (time.Duration, bool) {
	if !ev.IsOngoing() {
		return 0, false
	}
	d := now.Sub(ev.StoppedAt)
	if d < 0 {
		d = 0
	}
	return d, true
}

// FormatElapsed renders d as "1h 2m 3s", dropping zero leading units.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total%3600)/60, total%60

	var parts []string
	if h > 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if h > 0 || m > 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	parts = append(parts, fmt.Sprintf("%ds", s))
	return strings.Join(parts, " ")
}

func checkResume(stoppedAt, resumedAt time.Time) error {
	if resumedAt.IsZero() {
		return apperr.Validation("resolveDowntime", "resumed_at", "resume time is required")
	}
	if resumedAt.Before(stoppedAt) {
		return apperr.Validation("resolveDowntime", "resumed_at",
			"resume time %s is before stop time %s", resumedAt.Format(time.RFC3339), stoppedAt.Format(time.RFC3339))
	}
	return nil
}
