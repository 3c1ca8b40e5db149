package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/workorder"
)

type partsResponse struct {
	Line  *models.PartLine   `json:"line,omitempty"`
	Parts []models.PartLine  `json:"parts"`
	Stock models.StockReport `json:"stock"`
	Cost  models.CostSummary `json:"cost"`
}

func (h *WorkOrderHandler) partsUpdated(w http.ResponseWriter, r *http.Request, s *workorder.Session, line *models.PartLine, status int) {
	stock, err := s.Parts.StockReport(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("Stock check failed")
	}
	writeJSON(w, status, partsResponse{
		Line:  line,
		Parts: s.Parts.Effective(),
		Stock: stock,
		Cost:  s.CostSummary(),
	})
}

// AddPart adds a part from the catalog by material id, or by scanned barcode
func (h *WorkOrderHandler) AddPart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		MaterialID string `json:"material_id"`
		Quantity   int    `json:"quantity"`
		Barcode    string `json:"barcode"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var (
		line models.PartLine
		err  error
	)
	switch {
	case body.Barcode != "":
		line, err = s.Parts.AddFromBarcode(r.Context(), body.Barcode)
	case body.MaterialID != "":
		var mat models.Material
		mat, err = h.material(r, body.MaterialID)
		if err == nil {
			line, err = s.Parts.AddFromCatalog(r.Context(), mat, body.Quantity)
		}
	default:
		err = apperr.Validation("addPart", "material_id", "material_id or barcode is required")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.partsUpdated(w, r, s, &line, http.StatusCreated)
}

// UpdatePart sets the quantity of an ad hoc line; zero removes it
func (h *WorkOrderHandler) UpdatePart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Quantity *int `json:"quantity"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Quantity == nil {
		h.writeError(w, r, apperr.Validation("updatePart", "quantity", "quantity is required"))
		return
	}
	if err := s.Parts.UpdateQuantity(r.Context(), r.PathValue("lineID"), *body.Quantity); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.partsUpdated(w, r, s, nil, http.StatusOK)
}

// RemovePart deletes an ad hoc line; it requires ?confirm=true
func (h *WorkOrderHandler) RemovePart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Parts.Remove(r.Context(), r.PathValue("lineID"), confirmed(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.partsUpdated(w, r, s, nil, http.StatusOK)
}

// SearchMaterials searches the material catalog by name, SKU or barcode
func (h *WorkOrderHandler) SearchMaterials(w http.ResponseWriter, r *http.Request) {
	q := models.MaterialQuery{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.ParseInt(v, 10, 64)
		if err != nil || limit <= 0 {
			h.writeError(w, r, apperr.Validation("searchMaterials", "limit", "limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}
	mats, err := h.reference.SearchMaterials(r.Context(), q)
	if err != nil {
		h.writeError(w, r, apperr.Persistence("searchMaterials", err))
		return
	}
	writeJSON(w, http.StatusOK, mats)
}

// ListFailureCodes returns failure codes filtered by category and asset type
func (h *WorkOrderHandler) ListFailureCodes(w http.ResponseWriter, r *http.Request) {
	filter := models.FailureCodeFilter{
		Category:  r.URL.Query().Get("category"),
		AssetType: r.URL.Query().Get("assetType"),
	}
	codes, err := h.reference.FetchFailureCodes(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, apperr.Persistence("failureCodes", err))
		return
	}
	writeJSON(w, http.StatusOK, codes)
}

func (h *WorkOrderHandler) material(r *http.Request, id string) (models.Material, error) {
	mats, err := h.reference.SearchMaterials(r.Context(), models.MaterialQuery{IDs: []string{id}, Limit: 1})
	if err != nil {
		return models.Material{}, apperr.Persistence("addPart", err)
	}
	if len(mats) == 0 {
		return models.Material{}, apperr.NotFound("addPart", id, "material %s not found", id)
	}
	return mats[0], nil
}
