// Package loto manages the ordered lockout/tagout procedure of a work order.
package loto

import (
	"context"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/optimistic"
)

// Direction is the way a step moves in the procedure.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// DefaultTemplate is seeded when LOTO is enabled on a work order without steps.
var DefaultTemplate = []StepInput{
	{Description: "Notify all affected personnel that equipment will be shut down and locked out"},
	{Description: "Shut down equipment using the normal stopping procedure"},
	{Description: "Isolate all energy sources at their disconnects", LockColor: "red", EnergySource: "electrical"},
	{Description: "Apply personal locks and tags to each isolation point", LockColor: "red"},
	{Description: "Release or restrain stored energy", EnergySource: "stored"},
	{Description: "Verify zero energy state by attempting a normal start"},
}

// Updater persists partial work order updates.
type Updater interface {
	UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error)
}

// StepInput carries the editable fields of a step.
type StepInput struct {
	Description  string `json:"description"`
	LockColor    string `json:"lock_color,omitempty"`
	EnergySource string `json:"energy_source,omitempty"`
	Location     string `json:"location,omitempty"`
}

// Manager applies LOTO mutations to a work order's safety configuration.
type Manager struct {
	workOrderID string
	safety      *optimistic.Value[models.SafetyConfiguration]
	store       Updater
	colors      catalog.LockColorCatalog
	newID       func() string
	log         *log.Entry
}

// NewManager returns a Manager over the shared safety state of one work order.
func NewManager(workOrderID string, safety *optimistic.Value[models.SafetyConfiguration], store Updater, colors catalog.LockColorCatalog, logger *log.Entry) *Manager {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Manager{
		workOrderID: workOrderID,
		safety:      safety,
		store:       store,
		colors:      colors,
		newID:       func() string { return uuid.New().String() },
		log:         logger.WithField("work_order_id", workOrderID),
	}
}

// Steps returns the current procedure in order.
func (m *Manager) Steps() []models.LotoStep {
	return m.safety.Get().LotoSteps
}

// Required reports whether LOTO is required.
func (m *Manager) Required() bool {
	return m.safety.Get().LotoRequired
}

// ToggleRequired sets whether LOTO is required. Enabling it on a work order
// without steps seeds DefaultTemplate.
func (m *Manager) ToggleRequired(ctx context.Context, enabled bool) error {
	return m.update(ctx, "toggleRequired", func(s *models.SafetyConfiguration) error {
		s.LotoRequired = enabled
		if enabled && len(s.LotoSteps) == 0 {
			for _, in := range DefaultTemplate {
				s.LotoSteps = append(s.LotoSteps, m.step(in, len(s.LotoSteps)+1))
			}
		}
		return nil
	})
}

// AddStep appends a step to the end of the procedure.
func (m *Manager) AddStep(ctx context.Context, in StepInput) (models.LotoStep, error) {
	in, err := m.validate("addStep", in)
	if err != nil {
		return models.LotoStep{}, err
	}
	var added models.LotoStep
	err = m.update(ctx, "addStep", func(s *models.SafetyConfiguration) error {
		added = m.step(in, len(s.LotoSteps)+1)
		s.LotoSteps = append(s.LotoSteps, added)
		return nil
	})
	if err != nil {
		return models.LotoStep{}, err
	}
	return added, nil
}

// EditStep replaces the editable fields of a step. Its order is unchanged.
func (m *Manager) EditStep(ctx context.Context, id string, in StepInput) error {
	in, err := m.validate("editStep", in)
	if err != nil {
		return err
	}
	return m.update(ctx, "editStep", func(s *models.SafetyConfiguration) error {
		i := indexOf(s.LotoSteps, id)
		if i < 0 {
			return apperr.NotFound("editStep", id, "loto step %s not found", id)
		}
		st := &s.LotoSteps[i]
		st.Description = in.Description
		st.LockColor = in.LockColor
		st.EnergySource = in.EnergySource
		st.Location = in.Location
		return nil
	})
}

// RemoveStep deletes a step and renumbers the rest. Removal is irreversible,
// so the caller must pass confirmed.
func (m *Manager) RemoveStep(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return apperr.ErrConfirmationRequired
	}
	return m.update(ctx, "removeStep", func(s *models.SafetyConfiguration) error {
		i := indexOf(s.LotoSteps, id)
		if i < 0 {
			return apperr.NotFound("removeStep", id, "loto step %s not found", id)
		}
		s.LotoSteps = append(s.LotoSteps[:i], s.LotoSteps[i+1:]...)
		renumber(s.LotoSteps)
		return nil
	})
}

// Reorder swaps a step with its neighbour. Moving the first step up or the
// last step down changes nothing and persists nothing.
func (m *Manager) Reorder(ctx context.Context, id string, dir Direction) error {
	if dir != Up && dir != Down {
		return apperr.Validation("reorder", "direction", "direction must be %q or %q", Up, Down)
	}
	steps := m.Steps()
	i := indexOf(steps, id)
	if i < 0 {
		return apperr.NotFound("reorder", id, "loto step %s not found", id)
	}
	if (dir == Up && i == 0) || (dir == Down && i == len(steps)-1) {
		return nil
	}
	return m.update(ctx, "reorder", func(s *models.SafetyConfiguration) error {
		i := indexOf(s.LotoSteps, id)
		if i < 0 {
			return apperr.NotFound("reorder", id, "loto step %s not found", id)
		}
		j := i - 1
		if dir == Down {
			j = i + 1
		}
		if j < 0 || j >= len(s.LotoSteps) {
			return nil
		}
		s.LotoSteps[i], s.LotoSteps[j] = s.LotoSteps[j], s.LotoSteps[i]
		s.LotoSteps[i].Order = i + 1
		s.LotoSteps[j].Order = j + 1
		return nil
	})
}

func (m *Manager) validate(op string, in StepInput) (StepInput, error) {
	in.Description = strings.TrimSpace(in.Description)
	in.LockColor = strings.TrimSpace(in.LockColor)
	in.EnergySource = strings.TrimSpace(in.EnergySource)
	in.Location = strings.TrimSpace(in.Location)
	if in.Description == "" {
		return in, apperr.Validation(op, "description", "step description is required")
	}
	if in.LockColor != "" && m.colors != nil {
		if _, ok := m.colors.LockColor(in.LockColor); !ok {
			return in, apperr.Validation(op, "lock_color", "unknown lock color %q", in.LockColor)
		}
	}
	return in, nil
}

func (m *Manager) step(in StepInput, order int) models.LotoStep {
	return models.LotoStep{
		ID:           m.newID(),
		Order:        order,
		Description:  in.Description,
		LockColor:    in.LockColor,
		EnergySource: in.EnergySource,
		Location:     in.Location,
	}
}

func (m *Manager) update(ctx context.Context, op string, mutate func(*models.SafetyConfiguration) error) error {
	_, err := m.safety.Update(ctx, mutate, func(ctx context.Context, s models.SafetyConfiguration) error {
		if _, err := m.store.UpdateWorkOrder(ctx, m.workOrderID, models.WorkOrderUpdate{Safety: &s}); err != nil {
			m.log.WithError(err).WithField("op", op).Warn("LOTO update failed, reverted")
			return apperr.Persistence(op, err)
		}
		return nil
	})
	return err
}

func indexOf(steps []models.LotoStep, id string) int {
	for i, s := range steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// renumber rewrites order as the dense sequence 1..N.
func renumber(steps []models.LotoStep) {
	for i := range steps {
		steps[i].Order = i + 1
	}
}

// Dense reports whether the steps are numbered exactly 1..N in slice order.
func Dense(steps []models.LotoStep) bool {
	for i, s := range steps {
		if s.Order != i+1 {
			return false
		}
	}
	return true
}
