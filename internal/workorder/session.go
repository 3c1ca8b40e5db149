// Package workorder holds the in-memory state of the work orders being
// worked on and wires the safety, parts and downtime components together.
package workorder

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/cost"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/downtime"
	"github.com/ukydev/workorder-safety/internal/events"
	"github.com/ukydev/workorder-safety/internal/loto"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/optimistic"
	"github.com/ukydev/workorder-safety/internal/parts"
	"github.com/ukydev/workorder-safety/internal/permit"
)

// Store is the persistence a session reads and writes through.
type Store interface {
	db.WorkOrderCollection
	db.DowntimeCollection
	db.PartsCollection
	db.MaterialCollection
}

// Catalogs is the reference data a session validates against.
type Catalogs interface {
	catalog.LockColorCatalog
	catalog.PermitTypeCatalog
	catalog.PPECatalog
}

// Options configures new sessions.
type Options struct {
	Catalogs  Catalogs
	LaborRate float64
	Publisher events.Publisher
	Now       func() time.Time
	Logger    *log.Entry
}

// Session is one loaded work order.
type Session struct {
	Loto    *loto.Manager
	Permits *permit.Engine
	Parts   *parts.Reconciler

	mu sync.RWMutex
	wo models.WorkOrder

	safety    *optimistic.Value[models.SafetyConfiguration]
	tracker   *downtime.Tracker
	store     Store
	ppe       catalog.PPECatalog
	laborRate float64
	publisher events.Publisher
	now       func() time.Time
	log       *log.Entry
}

// Open loads a work order with its downtime event and procurement lines.
func Open(ctx context.Context, store Store, id string, opts Options) (*Session, error) {
	wo, err := store.FindWorkOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, apperr.NotFound("openWorkOrder", id, "work order %s not found", id)
		}
		return nil, apperr.Persistence("openWorkOrder", err)
	}
	ev, err := store.FetchDowntimeForWorkOrder(ctx, id)
	if err != nil {
		return nil, apperr.Persistence("openWorkOrder", err)
	}

	if opts.Catalogs == nil {
		opts.Catalogs = catalog.Default()
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	logger := opts.Logger.WithField("work_order_id", id)

	safety := optimistic.New(wo.Safety.Clone(), models.SafetyConfiguration.Clone)
	s := &Session{
		wo:        *wo,
		safety:    safety,
		store:     store,
		ppe:       opts.Catalogs,
		laborRate: opts.LaborRate,
		publisher: opts.Publisher,
		now:       opts.Now,
		log:       logger,
		Loto:      loto.NewManager(id, safety, store, opts.Catalogs, opts.Logger),
		Permits:   permit.NewEngine(id, safety, store, opts.Catalogs, opts.Now, opts.Logger),
		Parts:     parts.NewReconciler(id, wo.PartsUsed, store, opts.Logger),
		tracker:   downtime.NewTracker(ev, store, opts.Now, logger),
	}
	if err := s.Parts.LoadProcurement(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the work order id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wo.ID
}

// WorkOrder returns the work order with its current local safety and parts state.
func (s *Session) WorkOrder() models.WorkOrder {
	s.mu.RLock()
	wo := s.wo
	s.mu.RUnlock()
	wo.Safety = s.safety.Get()
	wo.PartsUsed = s.Parts.AdHoc()
	return wo
}

// SetWorkOrder replaces the stored work order fields after a status change.
// Safety and parts stay owned by their components.
func (s *Session) SetWorkOrder(wo models.WorkOrder) {
	s.mu.Lock()
	s.wo = wo
	s.mu.Unlock()
}

// Downtime returns the downtime tracker.
func (s *Session) Downtime() *downtime.Tracker { return s.tracker }

// Cost summarizes cost for the given labor hours.
func (s *Session) Cost(laborHours float64) models.CostSummary {
	s.mu.RLock()
	budget := s.wo.BudgetAllocated
	s.mu.RUnlock()
	return cost.Summarize(laborHours, s.laborRate, s.Parts.Effective(), budget)
}

// LaborHours returns recorded hours, or the hours since work started while
// nothing has been recorded yet.
func (s *Session) LaborHours() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wo.ActualHours > 0 {
		return s.wo.ActualHours
	}
	if s.wo.Status == models.WorkOrderInProgress && s.wo.StartedAt != nil {
		if d := s.now().Sub(*s.wo.StartedAt); d > 0 {
			return d.Hours()
		}
	}
	return 0
}

// CostSummary is the live cost of the work order.
func (s *Session) CostSummary() models.CostSummary {
	return s.Cost(s.LaborHours())
}

// TogglePPE adds or removes a PPE requirement and reports whether it is now required.
func (s *Session) TogglePPE(ctx context.Context, ppeID string) (bool, error) {
	if _, ok := s.ppe.PPE(ppeID); !ok {
		return false, apperr.NotFound("togglePPE", ppeID, "PPE item %s not found", ppeID)
	}
	var required bool
	_, err := s.safety.Update(ctx, func(c *models.SafetyConfiguration) error {
		out := c.PPERequired[:0]
		for _, id := range c.PPERequired {
			if id != ppeID {
				out = append(out, id)
			}
		}
		required = len(out) == len(c.PPERequired)
		if required {
			out = append(out, ppeID)
		}
		c.PPERequired = out
		return nil
	}, func(ctx context.Context, c models.SafetyConfiguration) error {
		if _, err := s.store.UpdateWorkOrder(ctx, s.ID(), models.WorkOrderUpdate{Safety: &c}); err != nil {
			s.log.WithError(err).WithField("ppe_id", ppeID).Warn("PPE update failed, reverted")
			return apperr.Persistence("togglePPE", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return required, nil
}

// Notify publishes a lifecycle event for this work order. Delivery
// failures are logged.
func (s *Session) Notify(ctx context.Context, eventType string, actor models.Actor, data interface{}) {
	ev := events.Event{Type: eventType, WorkOrderID: s.ID(), ActorID: actor.UserID, At: s.now(), Data: data}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithField("event", eventType).Warn("Event not published")
	}
}

// DowntimeView is the downtime part of the detail view.
type DowntimeView struct {
	Event                      models.DowntimeEvent `json:"event"`
	Elapsed                    string               `json:"elapsed,omitempty"`
	RequiresResumeConfirmation bool                 `json:"requires_resume_confirmation"`
}

// Detail is everything the work order detail screen shows.
type Detail struct {
	WorkOrder     models.WorkOrder   `json:"work_order"`
	LotoRequired  bool               `json:"loto_required"`
	LotoSteps     []models.LotoStep  `json:"loto_steps"`
	Permits       []permit.View      `json:"permits"`
	PermitsActive bool               `json:"permits_active"`
	Downtime      *DowntimeView      `json:"downtime,omitempty"`
	Parts         []models.PartLine  `json:"parts"`
	Stock         models.StockReport `json:"stock"`
	Cost          models.CostSummary `json:"cost"`
}

// Detail builds the detail view. Stock levels are fetched fresh.
func (s *Session) Detail(ctx context.Context) (Detail, error) {
	stock, err := s.Parts.StockReport(ctx)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{
		WorkOrder:     s.WorkOrder(),
		LotoRequired:  s.Loto.Required(),
		LotoSteps:     s.Loto.Steps(),
		Permits:       s.Permits.Summary(),
		PermitsActive: s.Permits.AllActive(),
		Parts:         s.Parts.Effective(),
		Stock:         stock,
		Cost:          s.CostSummary(),
	}
	if ev, ok := s.tracker.Event(); ok {
		v := &DowntimeView{Event: ev, RequiresResumeConfirmation: ev.RequiresResumeConfirmation()}
		if elapsed, ok := downtime.Elapsed(ev, s.now()); ok {
			v.Elapsed = downtime.FormatElapsed(elapsed)
		}
		d.Downtime = v
	}
	return d, nil
}
