package handlers

import (
	"net/http"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/events"
	"github.com/ukydev/workorder-safety/internal/loto"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/permit"
	"github.com/ukydev/workorder-safety/internal/workorder"
)

type lotoResponse struct {
	Required bool              `json:"required"`
	Steps    []models.LotoStep `json:"steps"`
}

func (h *WorkOrderHandler) lotoUpdated(w http.ResponseWriter, r *http.Request, s *workorder.Session, actor models.Actor, status int) {
	resp := lotoResponse{Required: s.Loto.Required(), Steps: s.Loto.Steps()}
	s.Notify(r.Context(), events.LotoUpdated, actor, resp)
	writeJSON(w, status, resp)
}

// SetLotoRequired enables or disables LOTO on the work order
func (h *WorkOrderHandler) SetLotoRequired(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Enabled == nil {
		h.writeError(w, r, apperr.Validation("toggleRequired", "enabled", "enabled is required"))
		return
	}
	if err := s.Loto.ToggleRequired(r.Context(), *body.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lotoUpdated(w, r, s, actor, http.StatusOK)
}

// AddLotoStep appends a step to the procedure
func (h *WorkOrderHandler) AddLotoStep(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var in loto.StepInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if _, err := s.Loto.AddStep(r.Context(), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lotoUpdated(w, r, s, actor, http.StatusCreated)
}

// EditLotoStep replaces the editable fields of a step
func (h *WorkOrderHandler) EditLotoStep(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var in loto.StepInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := s.Loto.EditStep(r.Context(), r.PathValue("stepID"), in); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lotoUpdated(w, r, s, actor, http.StatusOK)
}

// RemoveLotoStep deletes a step; it requires ?confirm=true
func (h *WorkOrderHandler) RemoveLotoStep(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Loto.RemoveStep(r.Context(), r.PathValue("stepID"), confirmed(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lotoUpdated(w, r, s, actor, http.StatusOK)
}

// MoveLotoStep moves a step one position up or down
func (h *WorkOrderHandler) MoveLotoStep(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var body struct {
		Direction loto.Direction `json:"direction"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Direction != loto.Up && body.Direction != loto.Down {
		h.writeError(w, r, apperr.Validation("reorder", "direction", "direction must be up or down"))
		return
	}
	if err := s.Loto.Reorder(r.Context(), r.PathValue("stepID"), body.Direction); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.lotoUpdated(w, r, s, actor, http.StatusOK)
}

// TogglePPE adds or removes a PPE requirement
func (h *WorkOrderHandler) TogglePPE(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	required, err := s.TogglePPE(r.Context(), r.PathValue("ppeID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ppe_id":       r.PathValue("ppeID"),
		"required":     required,
		"ppe_required": s.WorkOrder().Safety.PPERequired,
	})
}

type catalogResponse struct {
	LockColors  []catalog.LockColor `json:"lock_colors"`
	PPE         []catalog.PPEItem   `json:"ppe"`
	PermitTypes []models.PermitType `json:"permit_types"`
}

// GetCatalog returns the safety reference data
func (h *WorkOrderHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogResponse{
		LockColors:  h.catalogs.LockColors(),
		PPE:         h.catalogs.PPEItems(),
		PermitTypes: h.catalogs.PermitTypes(),
	})
}

// ListPermitTypes returns every permit type
func (h *WorkOrderHandler) ListPermitTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.catalogs.PermitTypes())
}

// OpenPermitForm returns a permit type with its initial form values
func (h *WorkOrderHandler) OpenPermitForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("typeID")
	pt, ok := h.catalogs.PermitType(id)
	if !ok {
		h.writeError(w, r, apperr.NotFound("openForm", id, "permit type %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"permit_type": pt,
		"form_data":   permit.OpenForm(pt, h.now()),
	})
}

// SubmitPermit submits a filled-in permit form
func (h *WorkOrderHandler) SubmitPermit(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var in permit.SubmitInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sub, err := s.Permits.Submit(r.Context(), actor, r.PathValue("typeID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s.Notify(r.Context(), events.PermitSubmitted, actor, sub)
	writeJSON(w, http.StatusCreated, sub)
}

// TogglePermitSelection adds or removes a permit type from the required set
func (h *WorkOrderHandler) TogglePermitSelection(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	selected, err := s.Permits.ToggleSelection(r.Context(), r.PathValue("typeID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"permit_type_id": r.PathValue("typeID"),
		"selected":       selected,
		"permits":        s.Permits.Summary(),
	})
}

func confirmed(r *http.Request) bool {
	return r.URL.Query().Get("confirm") == "true"
}
