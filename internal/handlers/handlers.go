package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/attachments"
	"github.com/ukydev/workorder-safety/internal/completion"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/middleware"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/workorder"
)

const maxBodyBytes = 1 << 20

// Reference is the read-only lookup data served to the forms.
type Reference interface {
	db.MaterialCollection
	db.FailureCodeCollection
}

// WorkOrderHandler serves the work order safety and completion endpoints
type WorkOrderHandler struct {
	sessions    *workorder.Registry
	completion  *completion.Orchestrator
	catalogs    workorder.Catalogs
	reference   Reference
	attachments *attachments.Store
	tick        time.Duration
	now         func() time.Time
	log         *log.Entry
}

// Config collects the handler's collaborators. Attachments may be nil when
// object storage is not configured.
type Config struct {
	Sessions    *workorder.Registry
	Completion  *completion.Orchestrator
	Catalogs    workorder.Catalogs
	Reference   Reference
	Attachments *attachments.Store
	StreamTick  time.Duration
	Now         func() time.Time
	Logger      *log.Entry
}

// NewWorkOrderHandler creates a new work order handler
func NewWorkOrderHandler(cfg Config) *WorkOrderHandler {
	if cfg.StreamTick <= 0 {
		cfg.StreamTick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}
	return &WorkOrderHandler{
		sessions:    cfg.Sessions,
		completion:  cfg.Completion,
		catalogs:    cfg.Catalogs,
		reference:   cfg.Reference,
		attachments: cfg.Attachments,
		tick:        cfg.StreamTick,
		now:         cfg.Now,
		log:         cfg.Logger,
	}
}

// Routes registers every endpoint on a new mux. All routes except /health
// go through authentication and the rate limiter.
func (h *WorkOrderHandler) Routes(auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter) http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, action string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth.RequirePermission(action)(fn))
	}

	mux.HandleFunc("GET /health", h.Health)

	route("GET /api/work-orders/{id}", models.ActionViewWorkOrder, h.GetWorkOrder)
	route("POST /api/work-orders/{id}/start", models.ActionStartWork, h.StartWork)
	route("POST /api/work-orders/{id}/complete", models.ActionCompleteWorkOrder, h.CompleteWorkOrder)

	route("POST /api/work-orders/{id}/loto/required", models.ActionManageSafety, h.SetLotoRequired)
	route("POST /api/work-orders/{id}/loto/steps", models.ActionManageSafety, h.AddLotoStep)
	route("PUT /api/work-orders/{id}/loto/steps/{stepID}", models.ActionManageSafety, h.EditLotoStep)
	route("DELETE /api/work-orders/{id}/loto/steps/{stepID}", models.ActionManageSafety, h.RemoveLotoStep)
	route("POST /api/work-orders/{id}/loto/steps/{stepID}/move", models.ActionManageSafety, h.MoveLotoStep)
	route("POST /api/work-orders/{id}/ppe/{ppeID}", models.ActionManageSafety, h.TogglePPE)

	route("GET /api/catalog", models.ActionViewWorkOrder, h.GetCatalog)
	route("GET /api/permit-types", models.ActionViewWorkOrder, h.ListPermitTypes)
	route("GET /api/permit-types/{typeID}/form", models.ActionViewWorkOrder, h.OpenPermitForm)
	route("POST /api/work-orders/{id}/permits/{typeID}", models.ActionSubmitPermit, h.SubmitPermit)
	route("POST /api/work-orders/{id}/permits/{typeID}/selection", models.ActionManageSafety, h.TogglePermitSelection)

	route("GET /api/work-orders/{id}/downtime/stream", models.ActionViewWorkOrder, h.StreamDowntime)
	route("POST /api/work-orders/{id}/downtime/resolve", models.ActionResolveDowntime, h.ResolveDowntime)

	route("POST /api/work-orders/{id}/parts", models.ActionManageParts, h.AddPart)
	route("PUT /api/work-orders/{id}/parts/{lineID}", models.ActionManageParts, h.UpdatePart)
	route("DELETE /api/work-orders/{id}/parts/{lineID}", models.ActionManageParts, h.RemovePart)
	route("GET /api/materials", models.ActionViewWorkOrder, h.SearchMaterials)
	route("GET /api/failure-codes", models.ActionViewWorkOrder, h.ListFailureCodes)

	route("POST /api/work-orders/{id}/attachments", models.ActionUploadAttachment, h.UploadAttachment)
	route("DELETE /api/attachments/{id}", models.ActionDeleteAttachment, h.DeleteAttachment)

	var handler http.Handler = mux
	if limiter != nil {
		handler = limiter.Limit(handler)
	}
	return auth.Authenticate(handler)
}

// Health reports liveness
func (h *WorkOrderHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WorkOrderHandler) session(w http.ResponseWriter, r *http.Request) (*workorder.Session, models.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, "User context not found", http.StatusUnauthorized)
		return nil, models.Actor{}, false
	}
	s, err := h.sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, actor, false
	}
	return s, actor, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error            string `json:"error"`
	Kind             string `json:"kind"`
	Field            string `json:"field,omitempty"`
	Query            string `json:"query,omitempty"`
	DowntimeRecorded bool   `json:"downtime_recorded,omitempty"`
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvariant:
		return http.StatusConflict
	case apperr.KindPersistence:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *WorkOrderHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := errorResponse{
		Error: err.Error(),
		Kind:  apperr.KindOf(err).String(),
		Field: apperr.FieldOf(err),
		Query: apperr.QueryOf(err),
	}
	var cerr *completion.Error
	if errors.As(err, &cerr) {
		resp.DowntimeRecorded = cerr.DowntimeRecorded
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(log.Fields{"method": r.Method, "path": r.URL.Path}).Error("Request failed")
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	}
	writeJSON(w, status, resp)
}
