// Package parts reconciles the parts consumed on a work order with the
// procurement requests raised for it and the stock on hand.
package parts

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/optimistic"
)

// Store is the persistence the reconciler needs.
type Store interface {
	UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error)
	FetchPartsForWorkOrder(ctx context.Context, workOrderID string) ([]models.PartRequestGroup, error)
	SearchMaterials(ctx context.Context, query models.MaterialQuery) ([]models.Material, error)
}

// barcodeSearchLimit bounds the candidates fetched for a scanned code.
const barcodeSearchLimit = 25

// Reconciler manages the ad hoc part lines of one work order. Procurement
// lines are read only.
type Reconciler struct {
	workOrderID string
	adHoc       *optimistic.Value[[]models.PartLine]
	store       Store
	newID       func() string
	log         *log.Entry

	mu          sync.RWMutex
	procurement []models.PartLine
}

// NewReconciler starts from the ad hoc lines already recorded on the work order.
func NewReconciler(workOrderID string, lines []models.PartLine, store Store, logger *log.Entry) *Reconciler {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Reconciler{
		workOrderID: workOrderID,
		adHoc:       optimistic.New(recalculated(lines), cloneLines),
		store:       store,
		newID:       func() string { return uuid.New().String() },
		log:         logger.WithField("work_order_id", workOrderID),
	}
}

// LoadProcurement fetches the part request groups of the work order.
func (r *Reconciler) LoadProcurement(ctx context.Context) error {
	groups, err := r.store.FetchPartsForWorkOrder(ctx, r.workOrderID)
	if err != nil {
		return apperr.Persistence("loadProcurement", err)
	}
	var lines []models.PartLine
	for _, g := range groups {
		for _, l := range g.Lines {
			l.Source = models.SourceProcurement
			l.Recalculate()
			lines = append(lines, l)
		}
	}
	r.mu.Lock()
	r.procurement = lines
	r.mu.Unlock()
	return nil
}

// AdHoc returns the lines added on the work order.
func (r *Reconciler) AdHoc() []models.PartLine {
	return r.adHoc.Get()
}

// Effective returns ad hoc lines followed by procurement lines, deduplicated
// by line id.
func (r *Reconciler) Effective() []models.PartLine {
	r.mu.RLock()
	procurement := cloneLines(r.procurement)
	r.mu.RUnlock()
	return Merge(r.adHoc.Get(), procurement)
}

// Merge unions two line lists, keeping the first line seen for each id.
func Merge(adHoc, procurement []models.PartLine) []models.PartLine {
	seen := make(map[string]bool, len(adHoc)+len(procurement))
	out := make([]models.PartLine, 0, len(adHoc)+len(procurement))
	for _, list := range [][]models.PartLine{adHoc, procurement} {
		for _, l := range list {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			out = append(out, l)
		}
	}
	return out
}

// AddFromCatalog adds quantity of a material. An existing ad hoc line for
// the same material grows by quantity instead of being duplicated.
func (r *Reconciler) AddFromCatalog(ctx context.Context, mat models.Material, quantity int) (models.PartLine, error) {
	if quantity <= 0 {
		return models.PartLine{}, apperr.Validation("addPart", "quantity", "quantity must be greater than zero")
	}
	if mat.ID == "" {
		return models.PartLine{}, apperr.Validation("addPart", "material_id", "material is required")
	}
	var added models.PartLine
	err := r.update(ctx, "addPart", func(lines *[]models.PartLine) error {
		for i := range *lines {
			l := &(*lines)[i]
			if l.MaterialID != mat.ID {
				continue
			}
			l.QuantityRequested += quantity
			l.QuantityApproved += quantity
			l.QuantityIssued += quantity
			l.QuantityConsumed += quantity
			l.Recalculate()
			added = *l
			return nil
		}
		line := models.PartLine{
			ID:                r.newID(),
			MaterialID:        mat.ID,
			MaterialName:      mat.Name,
			SKU:               mat.SKU,
			QuantityRequested: quantity,
			QuantityApproved:  quantity,
			QuantityIssued:    quantity,
			QuantityConsumed:  quantity,
			UnitOfMeasure:     mat.UnitOfMeasure,
			UnitCost:          mat.UnitCost,
			Warehouse:         mat.Warehouse,
			Bin:               mat.Bin,
			Status:            models.PartIssued,
			Source:            models.SourceAdHoc,
		}
		line.Recalculate()
		*lines = append(*lines, line)
		added = line
		return nil
	})
	return added, err
}

// AddFromBarcode looks up a scanned code by barcode or SKU and adds one
// unit of the match. When nothing matches, the returned not-found error
// carries the code so the caller can pivot to a manual search.
func (r *Reconciler) AddFromBarcode(ctx context.Context, code string) (models.PartLine, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return models.PartLine{}, apperr.Validation("scanPart", "barcode", "barcode is required")
	}
	candidates, err := r.store.SearchMaterials(ctx, models.MaterialQuery{Query: code, Limit: barcodeSearchLimit})
	if err != nil {
		return models.PartLine{}, apperr.Persistence("scanPart", err)
	}
	for _, mat := range candidates {
		if strings.EqualFold(mat.Barcode, code) || strings.EqualFold(mat.SKU, code) {
			return r.AddFromCatalog(ctx, mat, 1)
		}
	}
	return models.PartLine{}, apperr.NotFound("scanPart", code, "no material matches %q", code)
}

// UpdateQuantity sets every flow quantity of an ad hoc line. A quantity of
// zero or less removes the line.
func (r *Reconciler) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if r.isProcurement(lineID) {
		return apperr.Invariant("updatePart", "line %s comes from procurement and cannot be edited", lineID)
	}
	if quantity <= 0 {
		return r.Remove(ctx, lineID, true)
	}
	return r.update(ctx, "updatePart", func(lines *[]models.PartLine) error {
		i := indexOf(*lines, lineID)
		if i < 0 {
			return apperr.NotFound("updatePart", lineID, "part line %s not found", lineID)
		}
		l := &(*lines)[i]
		l.QuantityRequested = quantity
		l.QuantityApproved = quantity
		l.QuantityIssued = quantity
		l.QuantityConsumed = quantity
		l.Recalculate()
		return nil
	})
}

// Remove deletes an ad hoc line. It requires explicit confirmation.
func (r *Reconciler) Remove(ctx context.Context, lineID string, confirmed bool) error {
	if r.isProcurement(lineID) {
		return apperr.Invariant("removePart", "line %s comes from procurement and cannot be removed", lineID)
	}
	if !confirmed {
		return apperr.ErrConfirmationRequired
	}
	return r.update(ctx, "removePart", func(lines *[]models.PartLine) error {
		i := indexOf(*lines, lineID)
		if i < 0 {
			return apperr.NotFound("removePart", lineID, "part line %s not found", lineID)
		}
		*lines = append((*lines)[:i], (*lines)[i+1:]...)
		return nil
	})
}

// Materials fetches the catalog records of every material on the effective list.
func (r *Reconciler) Materials(ctx context.Context) (map[string]models.Material, error) {
	effective := r.Effective()
	ids := make([]string, 0, len(effective))
	seen := map[string]bool{}
	for _, l := range effective {
		if l.MaterialID == "" || seen[l.MaterialID] {
			continue
		}
		seen[l.MaterialID] = true
		ids = append(ids, l.MaterialID)
	}
	out := make(map[string]models.Material, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	mats, err := r.store.SearchMaterials(ctx, models.MaterialQuery{IDs: ids, Limit: int64(len(ids))})
	if err != nil {
		return nil, apperr.Persistence("materials", err)
	}
	for _, m := range mats {
		out[m.ID] = m
	}
	return out, nil
}

// StockReport checks the effective list against current stock.
func (r *Reconciler) StockReport(ctx context.Context) (models.StockReport, error) {
	mats, err := r.Materials(ctx)
	if err != nil {
		return models.StockReport{}, err
	}
	return StockWarnings(r.Effective(), mats), nil
}

func (r *Reconciler) isProcurement(lineID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return indexOf(r.procurement, lineID) >= 0
}

func (r *Reconciler) update(ctx context.Context, op string, mutate func(*[]models.PartLine) error) error {
	_, err := r.adHoc.Update(ctx, mutate, func(ctx context.Context, lines []models.PartLine) error {
		if _, err := r.store.UpdateWorkOrder(ctx, r.workOrderID, models.WorkOrderUpdate{PartsUsed: &lines}); err != nil {
			r.log.WithError(err).WithField("op", op).Warn("Parts update failed, reverted")
			return apperr.Persistence(op, err)
		}
		return nil
	})
	return err
}

func indexOf(lines []models.PartLine, id string) int {
	for i, l := range lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// recalculated copies lines with each total derived from its consumed quantity.
func recalculated(lines []models.PartLine) []models.PartLine {
	out := cloneLines(lines)
	for i := range out {
		out[i].Recalculate()
	}
	return out
}

func cloneLines(lines []models.PartLine) []models.PartLine {
	return append([]models.PartLine(nil), lines...)
}
