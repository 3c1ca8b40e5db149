// Package completion starts and completes work orders, resolving any
// ongoing downtime before the work order is closed.
package completion

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/downtime"
	"github.com/ukydev/workorder-safety/internal/events"
	"github.com/ukydev/workorder-safety/internal/models"
)

// Store persists work order status transitions.
type Store interface {
	StartWork(ctx context.Context, id string) (*models.WorkOrder, error)
	CompleteWorkOrder(ctx context.Context, id string, req models.CompletionRequest) (*models.WorkOrder, error)
}

// Subject is the in-memory state of the work order being completed.
type Subject interface {
	WorkOrder() models.WorkOrder
	SetWorkOrder(wo models.WorkOrder)
	Downtime() *downtime.Tracker
	// LaborHours is the labor booked so far, used when no hours are given.
	LaborHours() float64
	Cost(laborHours float64) models.CostSummary
}

// ErrResumeRequired is returned when production is stopped and no resume
// time was confirmed.
var ErrResumeRequired = &apperr.Error{
	Kind:  apperr.KindValidation,
	Op:    "complete",
	Field: "resumed_at",
	Msg:   "resume time confirmation required",
}

// Error is a failed completion. DowntimeRecorded is set when the downtime
// resolution was persisted before the completion itself failed; retrying
// will not resolve it again.
type Error struct {
	DowntimeRecorded bool
	Err              error
}

func (e *Error) Error() string {
	if e.DowntimeRecorded {
		return "downtime recorded but completion failed, please retry completion: " + e.Err.Error()
	}
	return "completion failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Request is the operator input for completion.
type Request struct {
	CompletionNotes string     `json:"completion_notes"`
	ActualHours     *float64   `json:"actual_hours,omitempty"`
	ResumedAt       *time.Time `json:"resumed_at,omitempty"`
	DowntimeNotes   string     `json:"downtime_notes,omitempty"`
}

// Result confirms a completed work order.
type Result struct {
	WorkOrder       models.WorkOrder   `json:"work_order"`
	DowntimeMinutes *int               `json:"downtime_minutes,omitempty"`
	Cost            models.CostSummary `json:"cost"`
}

// Orchestrator runs start and completion. At most one completion per work
// order is in flight at any time.
type Orchestrator struct {
	store     Store
	publisher events.Publisher
	now       func() time.Time
	log       *log.Entry

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewOrchestrator returns an Orchestrator. A nil publisher drops events.
func NewOrchestrator(store Store, publisher events.Publisher, now func() time.Time, logger *log.Entry) *Orchestrator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Orchestrator{
		store:     store,
		publisher: publisher,
		now:       now,
		log:       logger,
		inFlight:  make(map[string]bool),
	}
}

// Start moves an open or on-hold work order to in progress.
func (o *Orchestrator) Start(ctx context.Context, subj Subject, actor models.Actor) (models.WorkOrder, error) {
	wo := subj.WorkOrder()
	if !models.CanTransition(wo.Status, models.WorkOrderInProgress) {
		return wo, apperr.Invariant("startWork", "work order %s cannot start from %s", wo.ID, wo.Status)
	}
	started, err := o.store.StartWork(ctx, wo.ID)
	if err != nil {
		if errors.Is(err, db.ErrConflict) {
			return wo, apperr.Invariant("startWork", "work order %s changed status, reload it", wo.ID)
		}
		return wo, apperr.Persistence("startWork", err)
	}
	subj.SetWorkOrder(*started)
	o.log.WithFields(log.Fields{"work_order_id": wo.ID, "user_id": actor.UserID}).Info("Work started")
	o.publish(ctx, events.Event{Type: events.WorkOrderStarted, WorkOrderID: wo.ID, ActorID: actor.UserID})
	return *started, nil
}

// Complete resolves any ongoing downtime and then completes the work order.
// If downtime resolution fails nothing changes. If completion fails after
// downtime was recorded, the returned *Error says so and the work order
// stays in progress.
func (o *Orchestrator) Complete(ctx context.Context, subj Subject, actor models.Actor, req Request) (Result, error) {
	wo := subj.WorkOrder()
	if !o.acquire(wo.ID) {
		return Result{}, apperr.Invariant("complete", "completion of work order %s already in progress", wo.ID)
	}
	defer o.release(wo.ID)

	// Re-read after acquiring so a completion that just finished is seen.
	wo = subj.WorkOrder()
	if wo.Status != models.WorkOrderInProgress {
		return Result{}, apperr.Invariant("complete", "work order %s is %s, not in progress", wo.ID, wo.Status)
	}
	if req.ActualHours != nil && *req.ActualHours < 0 {
		return Result{}, apperr.Validation("complete", "actual_hours", "actual hours cannot be negative")
	}
	logger := o.log.WithFields(log.Fields{"work_order_id": wo.ID, "user_id": actor.UserID})

	var (
		minutes  *int
		recorded bool
		tracker  = subj.Downtime()
	)
	if tracker != nil {
		if ev, ok := tracker.Event(); ok && ev.IsOngoing() {
			resumedAt := o.now()
			if ev.RequiresResumeConfirmation() {
				if req.ResumedAt == nil {
					return Result{}, ErrResumeRequired
				}
				resumedAt = *req.ResumedAt
			} else if req.ResumedAt != nil {
				resumedAt = *req.ResumedAt
			}
			resolved, err := tracker.Resolve(ctx, resumedAt, req.DowntimeNotes, actor.UserID)
			if err != nil {
				return Result{}, err
			}
			minutes = resolved.DurationMinutes
			recorded = true
			o.publish(ctx, events.Event{Type: events.DowntimeResolved, WorkOrderID: wo.ID, ActorID: actor.UserID, Data: resolved})
		} else if ok {
			minutes = ev.DurationMinutes
		}
	}

	hours := subj.LaborHours()
	if req.ActualHours != nil {
		hours = *req.ActualHours
	}
	completed, err := o.store.CompleteWorkOrder(ctx, wo.ID, models.CompletionRequest{
		CompletionNotes: req.CompletionNotes,
		ActualHours:     &hours,
		CompletedBy:     actor.UserID,
	})
	if err != nil {
		logger.WithError(err).WithField("downtime_recorded", recorded).Warn("Work order completion failed")
		cause := apperr.Persistence("complete", err)
		if errors.Is(err, db.ErrConflict) {
			cause = apperr.Invariant("complete", "work order %s is no longer in progress", wo.ID)
		}
		return Result{}, &Error{DowntimeRecorded: recorded, Err: cause}
	}
	subj.SetWorkOrder(*completed)

	res := Result{WorkOrder: *completed, DowntimeMinutes: minutes, Cost: subj.Cost(hours)}

	fields := log.Fields{"total_cost": res.Cost.TotalCost}
	if minutes != nil {
		fields["downtime_minutes"] = *minutes
	}
	logger.WithFields(fields).Info("Work order completed")
	o.publish(ctx, events.Event{Type: events.WorkOrderCompleted, WorkOrderID: wo.ID, ActorID: actor.UserID, Data: res})
	return res, nil
}

func (o *Orchestrator) acquire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[id] {
		return false
	}
	o.inFlight[id] = true
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	ev.At = o.now()
	if err := o.publisher.Publish(ctx, ev); err != nil {
		o.log.WithError(err).WithField("event", ev.Type).Warn("Event not published")
	}
}
