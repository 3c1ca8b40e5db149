package models

import (
	"time"
)

// DowntimeStatus is the state of a production downtime event.
type DowntimeStatus string

const (
	DowntimeOngoing   DowntimeStatus = "ongoing"
	DowntimeCompleted DowntimeStatus = "completed"
)

// DowntimeEvent records an interval during which production was stopped.
type DowntimeEvent struct {
	ID                string         `json:"id" bson:"_id"`
	WorkOrderID       string         `json:"work_order_id" bson:"work_order_id"`
	Status            DowntimeStatus `json:"status" bson:"status"`
	ProductionStopped bool           `json:"production_stopped" bson:"production_stopped"`
	StoppedAt         time.Time      `json:"stopped_at" bson:"stopped_at"`
	ResumedAt         *time.Time     `json:"resumed_at" bson:"resumed_at"`
	DurationMinutes   *int           `json:"duration_minutes" bson:"duration_minutes"`
	Room              string         `json:"room" bson:"room"` // room or line identifier
	Notes             string         `json:"notes" bson:"notes"`
	ResolvedBy        string         `json:"resolved_by,omitempty" bson:"resolved_by,omitempty"`
}

// IsOngoing reports whether the event has not been resolved yet.
func (d DowntimeEvent) IsOngoing() bool {
	return d.Status == DowntimeOngoing
}

// RequiresResumeConfirmation reports whether completing the owning work order
// needs an explicit resume time from the operator.
func (d DowntimeEvent) RequiresResumeConfirmation() bool {
	return d.IsOngoing() && d.ProductionStopped
}

// ResolveDowntimeRequest carries the fields sent when a downtime event is resolved.
type ResolveDowntimeRequest struct {
	ResolvedBy string    `json:"resolved_by"`
	EndTime    time.Time `json:"end_time"`
	Notes      string    `json:"notes,omitempty"`
}
