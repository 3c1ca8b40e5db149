// Package permit tracks work permits issued against a work order through
// their approval and expiration lifecycle.
package permit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/optimistic"
)

// Updater persists partial work order updates.
type Updater interface {
	UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error)
}

// SubmitInput is a filled-in permit form.
type SubmitInput struct {
	FormData  models.FormData `json:"form_data"`
	Location  string          `json:"location"`
	Equipment string          `json:"equipment"`
}

// View is the derived state of one permit type on the work order.
type View struct {
	PermitType models.PermitType        `json:"permit_type"`
	Selected   bool                     `json:"selected"`
	Status     models.PermitStatus      `json:"status"`
	Submission *models.PermitSubmission `json:"submission,omitempty"`
	Remaining  time.Duration            `json:"remaining"`
}

// Engine submits permits and derives their status. Submissions made in this
// session are held in memory; earlier ones are reconstructed from the
// permit numbers and expiry recorded on the safety configuration.
type Engine struct {
	workOrderID string
	safety      *optimistic.Value[models.SafetyConfiguration]
	store       Updater
	types       catalog.PermitTypeCatalog
	now         func() time.Time
	newID       func() string
	log         *log.Entry

	mu          sync.RWMutex
	submissions map[string]models.PermitSubmission
}

// NewEngine returns an Engine over the shared safety state of one work order.
func NewEngine(workOrderID string, safety *optimistic.Value[models.SafetyConfiguration], store Updater, types catalog.PermitTypeCatalog, now func() time.Time, logger *log.Entry) *Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{
		workOrderID: workOrderID,
		safety:      safety,
		store:       store,
		types:       types,
		now:         now,
		newID:       func() string { return uuid.New().String() },
		log:         logger.WithField("work_order_id", workOrderID),
		submissions: make(map[string]models.PermitSubmission),
	}
}

// OpenForm returns the initial form values for a permit type.
func (e *Engine) OpenForm(permitTypeID string) (models.PermitType, models.FormData, error) {
	pt, err := e.permitType("openForm", permitTypeID)
	if err != nil {
		return models.PermitType{}, nil, err
	}
	return pt, OpenForm(pt, e.now()), nil
}

// Submit validates and submits a permit. Types that need approval start
// pending, others are approved at once. The submission id and expiry are
// recorded on the safety configuration; if that fails the local submission
// and the configuration change are both rolled back.
func (e *Engine) Submit(ctx context.Context, actor models.Actor, permitTypeID string, in SubmitInput) (models.PermitSubmission, error) {
	pt, err := e.permitType("submit", permitTypeID)
	if err != nil {
		return models.PermitSubmission{}, err
	}
	if err := Validate(pt, in.FormData); err != nil {
		return models.PermitSubmission{}, err
	}

	now := e.now()
	status := models.PermitApproved
	if pt.ApprovalRequired {
		status = models.PermitPending
	}
	sub := models.PermitSubmission{
		ID:              e.newID(),
		PermitTypeID:    pt.ID,
		WorkOrderID:     e.workOrderID,
		SubmittedBy:     actor.UserID,
		SubmittedByName: actor.UserName,
		SubmittedAt:     now,
		Status:          status,
		ExpiresAt:       now.Add(pt.Validity()),
		FormData:        copyForm(in.FormData),
		Location:        in.Location,
		Equipment:       in.Equipment,
	}

	var (
		prev    models.PermitSubmission
		hadPrev bool
		persist = e.persist("submit")
	)
	// Both callbacks run while the safety value is locked for this update, so
	// a rollback only ever restores the entry this call replaced.
	_, err = e.safety.Update(ctx, func(s *models.SafetyConfiguration) error {
		if s.PermitNumbers == nil {
			s.PermitNumbers = make(map[string]string)
		}
		if s.PermitExpiry == nil {
			s.PermitExpiry = make(map[string]time.Time)
		}
		s.PermitNumbers[pt.ID] = sub.ID
		s.PermitExpiry[pt.ID] = sub.ExpiresAt
		if !s.HasPermit(pt.ID) {
			s.Permits = append(s.Permits, pt.ID)
		}

		e.mu.Lock()
		prev, hadPrev = e.submissions[pt.ID]
		e.submissions[pt.ID] = sub
		e.mu.Unlock()
		return nil
	}, func(ctx context.Context, s models.SafetyConfiguration) error {
		if err := persist(ctx, s); err != nil {
			e.mu.Lock()
			if hadPrev {
				e.submissions[pt.ID] = prev
			} else {
				delete(e.submissions, pt.ID)
			}
			e.mu.Unlock()
			return err
		}
		return nil
	})
	if err != nil {
		return models.PermitSubmission{}, err
	}

	e.log.WithFields(log.Fields{
		"permit_type":   pt.ID,
		"submission_id": sub.ID,
		"status":        sub.Status,
		"expires_at":    sub.ExpiresAt,
	}).Info("Permit submitted")
	return sub, nil
}

// StatusOf derives the current status of a permit type. The second result is
// the submission the status was derived from, nil when there is none.
func (e *Engine) StatusOf(permitTypeID string) (models.PermitStatus, *models.PermitSubmission) {
	now := e.now()
	e.mu.RLock()
	sub, ok := e.submissions[permitTypeID]
	e.mu.RUnlock()
	if ok {
		return sub.StatusAt(now), &sub
	}

	s := e.safety.Get()
	number, ok := s.PermitNumbers[permitTypeID]
	if !ok || number == "" {
		return models.PermitNone, nil
	}
	synthetic := models.PermitSubmission{
		ID:           number,
		PermitTypeID: permitTypeID,
		WorkOrderID:  e.workOrderID,
		Status:       models.PermitApproved,
		ExpiresAt:    s.PermitExpiry[permitTypeID],
	}
	return synthetic.StatusAt(now), &synthetic
}

// ToggleSelection adds or removes a permit type from the work order's
// required set. It is rejected once a submission exists for the type so a
// submitted permit is never dropped silently.
func (e *Engine) ToggleSelection(ctx context.Context, permitTypeID string) (bool, error) {
	pt, err := e.permitType("toggleSelection", permitTypeID)
	if err != nil {
		return false, err
	}
	if status, _ := e.StatusOf(pt.ID); status != models.PermitNone {
		return false, apperr.Invariant("toggleSelection", "permit %s already submitted (%s)", pt.ID, status)
	}
	var selected bool
	_, err = e.safety.Update(ctx, func(s *models.SafetyConfiguration) error {
		out := s.Permits[:0]
		found := false
		for _, id := range s.Permits {
			if id == pt.ID {
				found = true
				continue
			}
			out = append(out, id)
		}
		if !found {
			out = append(out, pt.ID)
		}
		s.Permits = out
		selected = !found
		return nil
	}, e.persist("toggleSelection"))
	if err != nil {
		return false, err
	}
	return selected, nil
}

// Summary lists every permit type that is selected or has a submission.
func (e *Engine) Summary() []View {
	now := e.now()
	s := e.safety.Get()
	ids := map[string]bool{}
	for _, id := range s.Permits {
		ids[id] = true
	}
	for id := range s.PermitNumbers {
		ids[id] = true
	}
	e.mu.RLock()
	for id := range e.submissions {
		ids[id] = true
	}
	e.mu.RUnlock()

	views := make([]View, 0, len(ids))
	for id := range ids {
		pt, ok := e.types.PermitType(id)
		if !ok {
			pt = models.PermitType{ID: id, Name: id}
		}
		status, sub := e.StatusOf(id)
		v := View{PermitType: pt, Selected: s.HasPermit(id), Status: status, Submission: sub}
		if sub != nil && !sub.ExpiresAt.IsZero() && sub.ExpiresAt.After(now) {
			v.Remaining = sub.ExpiresAt.Sub(now)
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PermitType.ID < views[j].PermitType.ID })
	return views
}

// AllActive reports whether every selected permit is approved and unexpired.
func (e *Engine) AllActive() bool {
	for _, id := range e.safety.Get().Permits {
		if status, _ := e.StatusOf(id); status != models.PermitApproved {
			return false
		}
	}
	return true
}

func (e *Engine) permitType(op, id string) (models.PermitType, error) {
	pt, ok := e.types.PermitType(id)
	if !ok {
		return models.PermitType{}, apperr.NotFound(op, id, "permit type %s not found", id)
	}
	return pt, nil
}

func (e *Engine) persist(op string) func(context.Context, models.SafetyConfiguration) error {
	return func(ctx context.Context, s models.SafetyConfiguration) error {
		if _, err := e.store.UpdateWorkOrder(ctx, e.workOrderID, models.WorkOrderUpdate{Safety: &s}); err != nil {
			e.log.WithError(err).WithField("op", op).Warn("Permit update failed, reverted")
			return apperr.Persistence(op, err)
		}
		return nil
	}
}

func copyForm(in models.FormData) models.FormData {
	out := make(models.FormData, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
