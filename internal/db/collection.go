package db

import (
	"context"

	"github.com/ukydev/workorder-safety/internal/models"
)

// WorkOrderCollection defines the interface for work order operations.
type WorkOrderCollection interface {
	FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error)
	StartWork(ctx context.Context, id string) (*models.WorkOrder, error)
	CompleteWorkOrder(ctx context.Context, id string, req models.CompletionRequest) (*models.WorkOrder, error)
}

// DowntimeCollection defines the interface for downtime event operations.
type DowntimeCollection interface {
	FetchDowntimeForWorkOrder(ctx context.Context, workOrderID string) (*models.DowntimeEvent, error)
	ResolveDowntime(ctx context.Context, id string, req models.ResolveDowntimeRequest) (*models.DowntimeEvent, error)
}

// PartsCollection defines the interface for procurement part requests.
type PartsCollection interface {
	FetchPartsForWorkOrder(ctx context.Context, workOrderID string) ([]models.PartRequestGroup, error)
}

// MaterialCollection defines the interface for material catalog searches.
type MaterialCollection interface {
	SearchMaterials(ctx context.Context, query models.MaterialQuery) ([]models.Material, error)
}

// FailureCodeCollection defines the interface for failure code lookups.
type FailureCodeCollection interface {
	FetchFailureCodes(ctx context.Context, filter models.FailureCodeFilter) ([]models.FailureCode, error)
}

// AttachmentCollection defines the interface for attachment metadata.
type AttachmentCollection interface {
	InsertAttachment(ctx context.Context, attachment models.Attachment) error
	FindAttachmentByID(ctx context.Context, id string) (*models.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

// Backend is the full set of persistence operations the engine consumes.
type Backend interface {
	WorkOrderCollection
	DowntimeCollection
	PartsCollection
	MaterialCollection
	FailureCodeCollection
	AttachmentCollection
}
