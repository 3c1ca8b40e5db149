package downtime

import (
	"time"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/models"
)

// Nudges are the offsets an operator may apply to a proposed resume time.
var Nudges = []time.Duration{-30 * time.Minute, -5 * time.Minute, 5 * time.Minute, 30 * time.Minute}

// ResumeAdjuster holds the resume time proposed while confirming completion.
// The proposed time never moves before the stop time.
type ResumeAdjuster struct {
	stoppedAt time.Time
	proposed  time.Time
	now       func() time.Time
}

// NewResumeAdjuster proposes now as the resume time of ev.
func NewResumeAdjuster(ev models.DowntimeEvent, now func() time.Time) *ResumeAdjuster {
	if now == nil {
		now = time.Now
	}
	return &ResumeAdjuster{stoppedAt: ev.StoppedAt, proposed: now(), now: now}
}

// Proposed returns the current proposal.
func (a *ResumeAdjuster) Proposed() time.Time { return a.proposed }

// CanNudge reports whether applying delta keeps the proposal valid.
func (a *ResumeAdjuster) CanNudge(delta time.Duration) bool {
	return allowed(delta) && !a.proposed.Add(delta).Before(a.stoppedAt)
}

// Nudge moves the proposal by one of the fixed offsets.
func (a *ResumeAdjuster) Nudge(delta time.Duration) error {
	if !allowed(delta) {
		return apperr.Validation("nudgeResume", "delta", "unsupported adjustment %s", delta)
	}
	return a.Set(a.proposed.Add(delta))
}

// SnapToNow resets the proposal to the current time.
func (a *ResumeAdjuster) SnapToNow() error {
	return a.Set(a.now())
}

// Set replaces the proposal. A time before the stop time is rejected and the
// proposal is left unchanged.
func (a *ResumeAdjuster) Set(t time.Time) error {
	if err := checkResume(a.stoppedAt, t); err != nil {
		return err
	}
	a.proposed = t
	return nil
}

// Validate checks the proposal against the stop time.
func (a *ResumeAdjuster) Validate() error {
	return checkResume(a.stoppedAt, a.proposed)
}

func allowed(delta time.Duration) bool {
	for _, d := range Nudges {
		if d == delta {
			return true
		}
	}
	return false
}
