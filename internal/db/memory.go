package db

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ukydev/workorder-safety/internal/models"
)

// MemoryStore is an in-process Backend. It backs tests and local runs
// without MongoDB, and can be told to fail specific operations.
type MemoryStore struct {
	mu           sync.Mutex
	workOrders   map[string]models.WorkOrder
	downtime     map[string]models.DowntimeEvent
	partRequests map[string][]models.PartRequestGroup
	materials    map[string]models.Material
	failureCodes []models.FailureCode
	attachments  map[string]models.Attachment
	failures     map[string][]error
	calls        map[string]int

	Now func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workOrders:   make(map[string]models.WorkOrder),
		downtime:     make(map[string]models.DowntimeEvent),
		partRequests: make(map[string][]models.PartRequestGroup),
		materials:    make(map[string]models.Material),
		attachments:  make(map[string]models.Attachment),
		failures:     make(map[string][]error),
		calls:        make(map[string]int),
		Now:          time.Now,
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (m *MemoryStore) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MemoryStore) enter(op string) error {
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		m.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

// PutWorkOrder seeds a work order.
func (m *MemoryStore) PutWorkOrder(wo models.WorkOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wo.Safety = wo.Safety.Clone()
	m.workOrders[wo.ID] = wo
}

// PutDowntime seeds a downtime event.
func (m *MemoryStore) PutDowntime(ev models.DowntimeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downtime[ev.ID] = ev
}

// PutPartRequests seeds the procurement groups of a work order.
func (m *MemoryStore) PutPartRequests(workOrderID string, groups []models.PartRequestGroup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partRequests[workOrderID] = groups
}

// PutMaterials seeds the material catalog.
func (m *MemoryStore) PutMaterials(materials ...models.Material) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mat := range materials {
		m.materials[mat.ID] = mat
	}
}

// PutFailureCodes seeds failure codes.
func (m *MemoryStore) PutFailureCodes(codes ...models.FailureCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCodes = append(m.failureCodes, codes...)
}

func (m *MemoryStore) FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindWorkOrderByID"); err != nil {
		return nil, err
	}
	wo, ok := m.workOrders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	wo.Safety = wo.Safety.Clone()
	return &wo, nil
}

func (m *MemoryStore) UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateWorkOrder"); err != nil {
		return nil, err
	}
	wo, ok := m.workOrders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	if update.Safety != nil {
		wo.Safety = update.Safety.Clone()
	}
	if update.PartsUsed != nil {
		wo.PartsUsed = append([]models.PartLine(nil), (*update.PartsUsed)...)
	}
	if update.Status != nil {
		wo.Status = *update.Status
	}
	wo.UpdatedAt = m.Now()
	m.workOrders[id] = wo
	out := wo
	out.Safety = wo.Safety.Clone()
	return &out, nil
}

func (m *MemoryStore) StartWork(ctx context.Context, id string) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("StartWork"); err != nil {
		return nil, err
	}
	wo, ok := m.workOrders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	if !models.CanTransition(wo.Status, models.WorkOrderInProgress) {
		return nil, fmt.Errorf("start work order %s: %w", id, ErrConflict)
	}
	now := m.Now()
	wo.Status = models.WorkOrderInProgress
	wo.StartedAt = &now
	wo.UpdatedAt = now
	m.workOrders[id] = wo
	return &wo, nil
}

func (m *MemoryStore) CompleteWorkOrder(ctx context.Context, id string, req models.CompletionRequest) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CompleteWorkOrder"); err != nil {
		return nil, err
	}
	wo, ok := m.workOrders[id]
	if !ok {
		return nil, fmt.Errorf("work order %s: %w", id, ErrNotFound)
	}
	if wo.Status != models.WorkOrderInProgress {
		return nil, fmt.Errorf("complete work order %s: %w", id, ErrConflict)
	}
	now := m.Now()
	wo.Status = models.WorkOrderCompleted
	wo.CompletedAt = &now
	wo.CompletedBy = req.CompletedBy
	wo.CompletionNotes = req.CompletionNotes
	if req.ActualHours != nil {
		wo.ActualHours = *req.ActualHours
	}
	wo.Archived = true
	wo.UpdatedAt = now
	m.workOrders[id] = wo
	return &wo, nil
}

func (m *MemoryStore) FetchDowntimeForWorkOrder(ctx context.Context, workOrderID string) (*models.DowntimeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FetchDowntimeForWorkOrder"); err != nil {
		return nil, err
	}
	var latest *models.DowntimeEvent
	for _, ev := range m.downtime {
		if ev.WorkOrderID != workOrderID {
			continue
		}
		if latest == nil || ev.StoppedAt.After(latest.StoppedAt) {
			e := ev
			latest = &e
		}
	}
	return latest, nil
}

func (m *MemoryStore) ResolveDowntime(ctx context.Context, id string, req models.ResolveDowntimeRequest) (*models.DowntimeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ResolveDowntime"); err != nil {
		return nil, err
	}
	ev, ok := m.downtime[id]
	if !ok {
		return nil, fmt.Errorf("downtime event %s: %w", id, ErrNotFound)
	}
	if ev.Status != models.DowntimeOngoing {
		return nil, fmt.Errorf("resolve downtime %s: %w", id, ErrConflict)
	}
	if req.EndTime.Before(ev.StoppedAt) {
		return nil, fmt.Errorf("downtime %s: end time precedes stop time", id)
	}
	minutes := int(math.Round(req.EndTime.Sub(ev.StoppedAt).Minutes()))
	end := req.EndTime
	ev.Status = models.DowntimeCompleted
	ev.ResumedAt = &end
	ev.DurationMinutes = &minutes
	ev.ResolvedBy = req.ResolvedBy
	if req.Notes != "" {
		ev.Notes = req.Notes
	}
	m.downtime[id] = ev
	return &ev, nil
}

func (m *MemoryStore) FetchPartsForWorkOrder(ctx context.Context, workOrderID string) ([]models.PartRequestGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FetchPartsForWorkOrder"); err != nil {
		return nil, err
	}
	groups := m.partRequests[workOrderID]
	out := make([]models.PartRequestGroup, len(groups))
	for i, g := range groups {
		g.Lines = append([]models.PartLine(nil), g.Lines...)
		out[i] = g
	}
	return out, nil
}

func (m *MemoryStore) SearchMaterials(ctx context.Context, query models.MaterialQuery) ([]models.Material, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SearchMaterials"); err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(query.IDs))
	for _, id := range query.IDs {
		ids[id] = true
	}
	q := strings.ToLower(query.Query)
	out := []models.Material{}
	for _, mat := range m.materials {
		if len(ids) > 0 && !ids[mat.ID] {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(mat.Name), q) &&
			!strings.Contains(strings.ToLower(mat.SKU), q) &&
			!strings.Contains(strings.ToLower(mat.Barcode), q) {
			continue
		}
		out = append(out, mat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit := searchLimit(query); int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) FetchFailureCodes(ctx context.Context, filter models.FailureCodeFilter) ([]models.FailureCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FetchFailureCodes"); err != nil {
		return nil, err
	}
	out := []models.FailureCode{}
	for _, fc := range m.failureCodes {
		if !fc.Active {
			continue
		}
		if filter.Category != "" && fc.Category != filter.Category {
			continue
		}
		if filter.AssetType != "" && fc.AssetType != "" && fc.AssetType != filter.AssetType {
			continue
		}
		out = append(out, fc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *MemoryStore) InsertAttachment(ctx context.Context, attachment models.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("InsertAttachment"); err != nil {
		return err
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = m.Now()
	}
	m.attachments[attachment.ID] = attachment
	return nil
}

func (m *MemoryStore) FindAttachmentByID(ctx context.Context, id string) (*models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindAttachmentByID"); err != nil {
		return nil, err
	}
	a, ok := m.attachments[id]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) DeleteAttachment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteAttachment"); err != nil {
		return err
	}
	if _, ok := m.attachments[id]; !ok {
		return fmt.Errorf("attachment %s: %w", id, ErrNotFound)
	}
	delete(m.attachments, id)
	return nil
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*MemoryStore)(nil)
)
