package downtime

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/models"
)

// Resolver persists a downtime resolution.
type Resolver interface {
	ResolveDowntime(ctx context.Context, id string, req models.ResolveDowntimeRequest) (*models.DowntimeEvent, error)
}

// Tracker owns the downtime event of one work order.
type Tracker struct {
	opMu sync.Mutex

	mu    sync.RWMutex
	event *models.DowntimeEvent

	store Resolver
	now   func() time.Time
	log   *log.Entry
}

// NewTracker wraps ev, which may be nil when the work order has no downtime.
func NewTracker(ev *models.DowntimeEvent, store Resolver, now func() time.Time, logger *log.Entry) *Tracker {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	t := &Tracker{store: store, now: now, log: logger}
	if ev != nil {
		cp := *ev
		t.event = &cp
		t.log = t.log.WithField("downtime_id", ev.ID)
	}
	return t
}

// Event returns the tracked event and whether there is one.
func (t *Tracker) Event() (models.DowntimeEvent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.event == nil {
		return models.DowntimeEvent{}, false
	}
	return *t.event, true
}

// Elapsed returns the live elapsed time while the event is ongoing.
func (t *Tracker) Elapsed() (time.Duration, bool) {
	ev, ok := t.Event()
	if !ok {
		return 0, false
	}
	return Elapsed(ev, t.now())
}

// RequiresResumeConfirmation reports whether completion must ask for a resume time.
func (t *Tracker) RequiresResumeConfirmation() bool {
	ev, ok := t.Event()
	return ok && ev.RequiresResumeConfirmation()
}

// NewAdjuster starts a resume time proposal for the ongoing event.
func (t *Tracker) NewAdjuster() (*ResumeAdjuster, error) {
	ev, ok := t.Event()
	if !ok || !ev.IsOngoing() {
		return nil, apperr.Invariant("adjustResume", "no ongoing downtime")
	}
	return NewResumeAdjuster(ev, t.now), nil
}

// Resolve validates and persists the resolution. The local event only moves
// to completed once the store has confirmed it.
func (t *Tracker) Resolve(ctx context.Context, resumedAt time.Time, notes, resolvedBy string) (models.DowntimeEvent, error) {
	t.opMu.Lock()
	defer t.opMu.Unlock()

	ev, ok := t.Event()
	if !ok {
		return models.DowntimeEvent{}, apperr.NotFound("resolveDowntime", "", "work order has no downtime event")
	}
	resolved, err := Resolve(ev, resumedAt, notes, resolvedBy)
	if err != nil {
		return ev, err
	}

	stored, err := t.store.ResolveDowntime(ctx, ev.ID, models.ResolveDowntimeRequest{
		ResolvedBy: resolvedBy,
		EndTime:    resumedAt,
		Notes:      notes,
	})
	if err != nil {
		t.log.WithError(err).Warn("Downtime resolution failed, event left ongoing")
		if errors.Is(err, db.ErrConflict) {
			return ev, apperr.Invariant("resolveDowntime", "downtime event %s was already resolved", ev.ID)
		}
		return ev, apperr.Persistence("resolveDowntime", err)
	}
	if stored != nil {
		resolved = *stored
	}

	t.mu.Lock()
	t.event = &resolved
	t.mu.Unlock()

	t.log.WithFields(log.Fields{
		"duration_minutes": *resolved.DurationMinutes,
		"resolved_by":      resolvedBy,
	}).Info("Downtime resolved")
	return resolved, nil
}
