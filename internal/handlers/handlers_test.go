package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/auth"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/completion"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/middleware"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/workorder"
)

var t0 = time.Date(2026, 8, 3, 13, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	store   *db.MemoryStore
	tokens  map[models.Role]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	now := func() time.Time { return t0.Add(time.Hour) }

	store := db.NewMemoryStore()
	store.Now = now
	started := t0
	store.PutWorkOrder(models.WorkOrder{ID: "wo-1", Number: "WO-7", Status: models.WorkOrderInProgress, StartedAt: &started})
	store.PutWorkOrder(models.WorkOrder{ID: "wo-2", Number: "WO-8", Status: models.WorkOrderOpen})
	store.PutDowntime(models.DowntimeEvent{ID: "dt-1", WorkOrderID: "wo-1", Status: models.DowntimeOngoing, ProductionStopped: true, StoppedAt: t0})
	store.PutMaterials(models.Material{ID: "mat-1", Name: "Contactor", SKU: "CT-40", Barcode: "77001", UnitCost: 64, CurrentStock: 1, MinLevel: 2})

	cat := catalog.Default()
	h := NewWorkOrderHandler(Config{
		Sessions:   workorder.NewRegistry(store, workorder.Options{Catalogs: cat, LaborRate: 75, Now: now}),
		Completion: completion.NewOrchestrator(store, nil, now, nil),
		Catalogs:   cat,
		Reference:  store,
		StreamTick: 5 * time.Millisecond,
		Now:        now,
	})

	authService, err := auth.NewService("handler-test", time.Hour)
	require.NoError(t, err)
	tokens := map[models.Role]string{}
	for _, role := range []models.Role{models.RoleTechnician, models.RoleViewer, models.RoleSupervisor} {
		tok, err := authService.GenerateToken(models.Actor{UserID: "u-" + string(role), UserName: string(role), Role: role})
		require.NoError(t, err)
		tokens[role] = tok
	}
	return &testServer{
		handler: h.Routes(middleware.NewAuthMiddleware(authService), nil),
		store:   store,
		tokens:  tokens,
	}
}

func (s *testServer) do(role models.Role, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+s.tokens[role])
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do("", "GET", "/health", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do("", "GET", "/api/work-orders/wo-1", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(models.RoleViewer, "GET", "/api/work-orders/wo-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(models.RoleViewer, "POST", "/api/work-orders/wo-1/loto/steps", map[string]string{"description": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(models.RoleViewer, "GET", "/api/work-orders/nope", nil).Code)
}

func TestGetWorkOrder(t *testing.T) {
	s := newTestServer(t)
	w := s.do(models.RoleTechnician, "GET", "/api/work-orders/wo-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var detail workorder.Detail
	decode(t, w, &detail)
	assert.Equal(t, "WO-7", detail.WorkOrder.Number)
	require.NotNil(t, detail.Downtime)
	assert.Equal(t, "1h 0m 0s", detail.Downtime.Elapsed)
	assert.Equal(t, 75.0, detail.Cost.LaborCost)
}

func TestLotoEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/loto/steps", map[string]string{"description": "Open breaker CB-12", "lock_color": "red"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp lotoResponse
	decode(t, w, &resp)
	require.Len(t, resp.Steps, 1)
	stepID := resp.Steps[0].ID

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/loto/steps", map[string]string{"description": "Bleed line", "lock_color": "plaid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errResp errorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "lock_color", errResp.Field)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/loto/steps/"+stepID+"/move", map[string]string{"direction": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(models.RoleTechnician, "DELETE", "/api/work-orders/wo-1/loto/steps/"+stepID, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "deleting needs confirmation")

	w = s.do(models.RoleTechnician, "DELETE", "/api/work-orders/wo-1/loto/steps/"+stepID+"?confirm=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Steps)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/loto/required", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.True(t, resp.Required)
	assert.NotEmpty(t, resp.Steps)
}

func TestPermitEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(models.RoleTechnician, "GET", "/api/permit-types/working_at_height/form", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/permits/working_at_height", map[string]interface{}{
		"form_data": map[string]interface{}{"height_m": "6"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/permits/working_at_height", map[string]interface{}{
		"form_data": map[string]interface{}{"height_m": "6", "anchor_inspected": true},
		"location":  "Roof B",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub models.PermitSubmission
	decode(t, w, &sub)
	assert.Equal(t, models.PermitApproved, sub.Status)
	assert.Equal(t, "u-technician", sub.SubmittedBy)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/permits/working_at_height/selection", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/permits/hot_work/selection", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPartsEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/parts", map[string]string{"barcode": "00000"})
	require.Equal(t, http.StatusNotFound, w.Code)
	var errResp errorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "00000", errResp.Query)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/parts", map[string]interface{}{"material_id": "mat-1", "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp partsResponse
	decode(t, w, &resp)
	require.NotNil(t, resp.Line)
	assert.Equal(t, 128.0, resp.Line.TotalCost)
	assert.True(t, resp.Stock.HasCritical)
	assert.Equal(t, 203.0, resp.Cost.TotalCost)

	w = s.do(models.RoleTechnician, "PUT", "/api/work-orders/wo-1/parts/"+resp.Line.ID, map[string]int{"quantity": 0})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Empty(t, resp.Parts)

	w = s.do(models.RoleViewer, "GET", "/api/materials?q=ct-", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mats []models.Material
	decode(t, w, &mats)
	assert.Len(t, mats, 1)
}

func TestCompleteEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/complete", map[string]string{"completion_notes": "done"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errResp errorResponse
	decode(t, w, &errResp)
	assert.Equal(t, "resumed_at", errResp.Field)

	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/complete", map[string]interface{}{"confirm_resume": true, "nudge_minutes": []int{-30, -5}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res completion.Result
	decode(t, w, &res)
	require.NotNil(t, res.DowntimeMinutes)
	assert.Equal(t, 25, *res.DowntimeMinutes)
	assert.Equal(t, models.WorkOrderCompleted, res.WorkOrder.Status)
	assert.Equal(t, 1.0, res.WorkOrder.ActualHours, "elapsed labor is booked when no hours are given")

	loads := s.store.Calls("FindWorkOrderByID")
	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/complete", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, loads+1, s.store.Calls("FindWorkOrderByID"), "completed session is reloaded")
}

func TestCompleteEndpoint_DowntimeRecorded(t *testing.T) {
	s := newTestServer(t)
	s.store.FailNext("CompleteWorkOrder", errors.New("primary stepped down"))

	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/complete", map[string]bool{"confirm_resume": true})
	require.Equal(t, http.StatusBadGateway, w.Code)
	var errResp errorResponse
	decode(t, w, &errResp)
	assert.True(t, errResp.DowntimeRecorded)
	assert.Contains(t, errResp.Error, "please retry completion")
}

func TestStartEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-2/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var wo models.WorkOrder
	decode(t, w, &wo)
	assert.Equal(t, models.WorkOrderInProgress, wo.Status)
}

func TestResolveDowntimeEndpoint(t *testing.T) {
	s := newTestServer(t)

	early := t0.Add(-time.Minute)
	w := s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/downtime/resolve", map[string]interface{}{"resumed_at": early})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	resumed := t0.Add(47 * time.Minute)
	w = s.do(models.RoleTechnician, "POST", "/api/work-orders/wo-1/downtime/resolve", map[string]interface{}{"resumed_at": resumed, "notes": "restarted line"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ev models.DowntimeEvent
	decode(t, w, &ev)
	assert.Equal(t, 47, *ev.DurationMinutes)
}

func TestStreamDowntime(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/work-orders/wo-1/downtime/stream", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+s.tokens[models.RoleViewer])
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "event: elapsed\n"))
	assert.Contains(t, w.Body.String(), `"display":"1h 0m 0s"`)
}

func TestAttachmentsNotConfigured(t *testing.T) {
	s := newTestServer(t)
	w := s.do(models.RoleSupervisor, "DELETE", "/api/attachments/att-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.Validation("op", "f", "bad")))
	assert.Equal(t, http.StatusNotFound, StatusFor(apperr.NotFound("op", "q", "missing")))
	assert.Equal(t, http.StatusConflict, StatusFor(apperr.Invariant("op", "busy")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(apperr.Persistence("op", errors.New("x"))))
	assert.Equal(t, http.StatusBadGateway, StatusFor(&completion.Error{DowntimeRecorded: true, Err: apperr.Persistence("op", errors.New("x"))}))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
