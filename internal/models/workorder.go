package models

import (
	"time"
)

// WorkOrderStatus is the lifecycle state of a maintenance work order.
type WorkOrderStatus string

const (
	WorkOrderOpen       WorkOrderStatus = "open"
	WorkOrderInProgress WorkOrderStatus = "in_progress"
	WorkOrderCompleted  WorkOrderStatus = "completed"
	WorkOrderOnHold     WorkOrderStatus = "on_hold"
	WorkOrderCancelled  WorkOrderStatus = "cancelled"
)

var workOrderTransitions = map[WorkOrderStatus][]WorkOrderStatus{
	WorkOrderOpen:       {WorkOrderInProgress, WorkOrderOnHold, WorkOrderCancelled},
	WorkOrderInProgress: {WorkOrderCompleted, WorkOrderOnHold, WorkOrderCancelled},
	WorkOrderOnHold:     {WorkOrderInProgress, WorkOrderOpen, WorkOrderCancelled},
	WorkOrderCompleted:  {},
	WorkOrderCancelled:  {},
}

// CanTransition reports whether a work order may move from one status to another.
func CanTransition(from, to WorkOrderStatus) bool {
	for _, s := range workOrderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the work order lifecycle.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == WorkOrderCompleted || s == WorkOrderCancelled
}

// WorkOrder represents a CMMS maintenance work order.
type WorkOrder struct {
	ID                string              `json:"id" bson:"_id"`
	Number            string              `json:"number" bson:"number"`
	Title             string              `json:"title" bson:"title"`
	Description       string              `json:"description" bson:"description"`
	Status            WorkOrderStatus     `json:"status" bson:"status"`
	Type              string              `json:"type" bson:"type"`         // "corrective", "preventive", "inspection", "emergency"
	Priority          string              `json:"priority" bson:"priority"` // "low", "medium", "high", "critical"
	AssetID           string              `json:"asset_id" bson:"asset_id"`
	Department        string              `json:"department" bson:"department"`
	AssignedTo        string              `json:"assigned_to" bson:"assigned_to"`
	DueDate           *time.Time          `json:"due_date,omitempty" bson:"due_date,omitempty"`
	EstimatedHours    float64             `json:"estimated_hours" bson:"estimated_hours"`
	ActualHours       float64             `json:"actual_hours" bson:"actual_hours"`
	BudgetAllocated   *float64            `json:"budget_allocated,omitempty" bson:"budget_allocated,omitempty"`
	ProductionStopped bool                `json:"production_stopped" bson:"production_stopped"`
	Safety            SafetyConfiguration `json:"safety" bson:"safety"`
	PartsUsed         []PartLine          `json:"parts_used" bson:"parts_used"`
	StartedAt         *time.Time          `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	CompletedBy       string              `json:"completed_by,omitempty" bson:"completed_by,omitempty"`
	CompletionNotes   string              `json:"completion_notes,omitempty" bson:"completion_notes,omitempty"`
	Archived          bool                `json:"archived" bson:"archived"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// WorkOrderUpdate is a partial update; nil fields are left untouched.
type WorkOrderUpdate struct {
	Safety    *SafetyConfiguration `json:"safety,omitempty"`
	PartsUsed *[]PartLine          `json:"parts_used,omitempty"`
	Status    *WorkOrderStatus     `json:"status,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u WorkOrderUpdate) IsEmpty() bool {
	return u.Safety == nil && u.PartsUsed == nil && u.Status == nil
}

// CompletionRequest carries the fields persisted when a work order is completed.
type CompletionRequest struct {
	CompletionNotes string   `json:"completion_notes,omitempty"`
	ActualHours     *float64 `json:"actual_hours,omitempty"`
	CompletedBy     string   `json:"completed_by"`
}

// SafetyConfiguration is the safety record embedded in a work order.
type SafetyConfiguration struct {
	LotoRequired  bool                 `json:"loto_required" bson:"loto_required"`
	LotoSteps     []LotoStep           `json:"loto_steps" bson:"loto_steps"`
	Permits       []string             `json:"permits" bson:"permits"`
	PermitNumbers map[string]string    `json:"permit_numbers" bson:"permit_numbers"`
	PermitExpiry  map[string]time.Time `json:"permit_expiry" bson:"permit_expiry"`
	PPERequired   []string             `json:"ppe_required" bson:"ppe_required"`
}

// Clone returns a deep copy so the copy can be mutated without touching s.
func (s SafetyConfiguration) Clone() SafetyConfiguration {
	out := s
	out.LotoSteps = append([]LotoStep(nil), s.LotoSteps...)
	out.Permits = append([]string(nil), s.Permits...)
	out.PPERequired = append([]string(nil), s.PPERequired...)
	out.PermitNumbers = make(map[string]string, len(s.PermitNumbers))
	for k, v := range s.PermitNumbers {
		out.PermitNumbers[k] = v
	}
	out.PermitExpiry = make(map[string]time.Time, len(s.PermitExpiry))
	for k, v := range s.PermitExpiry {
		out.PermitExpiry[k] = v
	}
	return out
}

// HasPermit reports whether the permit type is in the required set.
func (s SafetyConfiguration) HasPermit(permitTypeID string) bool {
	return containsString(s.Permits, permitTypeID)
}

// HasPPE reports whether the PPE item is required.
func (s SafetyConfiguration) HasPPE(ppeID string) bool {
	return containsString(s.PPERequired, ppeID)
}

// LotoStep is one ordered step of a lockout/tagout procedure.
type LotoStep struct {
	ID           string `json:"id" bson:"id"`
	Order        int    `json:"order" bson:"order"`
	Description  string `json:"description" bson:"description"`
	LockColor    string `json:"lock_color,omitempty" bson:"lock_color,omitempty"`
	EnergySource string `json:"energy_source,omitempty" bson:"energy_source,omitempty"`
	Location     string `json:"location,omitempty" bson:"location,omitempty"`
}

// FailureCode classifies the cause of a failure when closing out a work order.
type FailureCode struct {
	ID          string `json:"id" bson:"_id"`
	Code        string `json:"code" bson:"code"`
	Description string `json:"description" bson:"description"`
	Category    string `json:"category" bson:"category"` // "problem", "cause", "remedy"
	AssetType   string `json:"asset_type" bson:"asset_type"`
	Active      bool   `json:"active" bson:"active"`
}

// FailureCodeFilter narrows a failure code lookup. Empty fields match everything.
type FailureCodeFilter struct {
	Category  string `json:"category,omitempty"`
	AssetType string `json:"asset_type,omitempty"`
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
