package permit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/models"
	"github.com/ukydev/workorder-safety/internal/optimistic"
)

type typeSet map[string]models.PermitType

func (s typeSet) PermitType(id string) (models.PermitType, bool) {
	pt, ok := s[id]
	return pt, ok
}

func (s typeSet) PermitTypes() []models.PermitType {
	out := make([]models.PermitType, 0, len(s))
	for _, pt := range s {
		out = append(out, pt)
	}
	return out
}

var (
	t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

	heightPermit = models.PermitType{
		ID:              "height",
		Name:            "Working at Height",
		ExpirationHours: 8,
		FormFields:      []models.FormField{{ID: "anchor", Label: "Anchor Inspected", Type: models.FieldCheckbox, Required: true}},
	}
	hotWorkPermit = models.PermitType{
		ID:               "hot_work",
		Name:             "Hot Work",
		ApprovalRequired: true,
		ExpirationHours:  4,
	}
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T, initial models.SafetyConfiguration) (*Engine, *db.MemoryStore, *clock) {
	t.Helper()
	store := db.NewMemoryStore()
	store.PutWorkOrder(models.WorkOrder{ID: "wo-1", Status: models.WorkOrderInProgress, Safety: initial})
	safety := optimistic.New(initial, models.SafetyConfiguration.Clone)
	c := &clock{now: t0}
	e := NewEngine("wo-1", safety, store, typeSet{heightPermit.ID: heightPermit, hotWorkPermit.ID: hotWorkPermit}, c.Now, nil)
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("PMT-%03d", n)
	}
	return e, store, c
}

func TestSubmit_NoApprovalExpires(t *testing.T) {
	e, store, c := newTestEngine(t, models.SafetyConfiguration{})
	ctx := context.Background()

	sub, err := e.Submit(ctx, models.Actor{UserID: "u-7", UserName: "Dana"}, "height", SubmitInput{FormData: models.FormData{"anchor": true}})
	require.NoError(t, err)
	assert.Equal(t, models.PermitApproved, sub.Status)
	assert.Equal(t, t0.Add(8*time.Hour), sub.ExpiresAt)
	assert.Equal(t, "Dana", sub.SubmittedByName)

	status, _ := e.StatusOf("height")
	assert.Equal(t, models.PermitApproved, status)
	assert.True(t, e.AllActive())

	wo, err := store.FindWorkOrderByID(ctx, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, "PMT-001", wo.Safety.PermitNumbers["height"])
	assert.Equal(t, sub.ExpiresAt, wo.Safety.PermitExpiry["height"])
	assert.Equal(t, []string{"height"}, wo.Safety.Permits)

	c.now = t0.Add(9 * time.Hour)
	status, _ = e.StatusOf("height")
	assert.Equal(t, models.PermitExpired, status)
	assert.False(t, e.AllActive())
}

func TestSubmit_ApprovalRequiredStartsPending(t *testing.T) {
	e, _, _ := newTestEngine(t, models.SafetyConfiguration{})

	sub, err := e.Submit(context.Background(), models.Actor{UserID: "u-1"}, "hot_work", SubmitInput{})
	require.NoError(t, err)
	assert.Equal(t, models.PermitPending, sub.Status)
	assert.Equal(t, t0.Add(4*time.Hour), sub.ExpiresAt)
	assert.False(t, e.AllActive())
}

func TestSubmit_Rejections(t *testing.T) {
	e, store, _ := newTestEngine(t, models.SafetyConfiguration{})
	ctx := context.Background()

	_, err := e.Submit(ctx, models.Actor{}, "height", SubmitInput{FormData: models.FormData{"anchor": false}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "anchor", apperr.FieldOf(err))

	_, err = e.Submit(ctx, models.Actor{}, "diving", SubmitInput{})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 0, store.Calls("UpdateWorkOrder"))
	status, sub := e.StatusOf("height")
	assert.Equal(t, models.PermitNone, status)
	assert.Nil(t, sub)
}

func TestSubmit_PersistFailureRollsBack(t *testing.T) {
	e, store, _ := newTestEngine(t, models.SafetyConfiguration{})
	ctx := context.Background()
	form := SubmitInput{FormData: models.FormData{"anchor": true}}

	first, err := e.Submit(ctx, models.Actor{}, "height", form)
	require.NoError(t, err)

	store.FailNext("UpdateWorkOrder", errors.New("connection reset"))
	_, err = e.Submit(ctx, models.Actor{}, "height", form)
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	_, sub := e.StatusOf("height")
	require.NotNil(t, sub)
	assert.Equal(t, first.ID, sub.ID, "prior submission restored")
	assert.Equal(t, first.ID, e.safety.Get().PermitNumbers["height"])
}

// gatedStore blocks the first update until released and then fails it.
type gatedStore struct {
	entered chan struct{}
	release chan struct{}
	calls   int
	mu      sync.Mutex
}

func (g *gatedStore) UpdateWorkOrder(ctx context.Context, id string, update models.WorkOrderUpdate) (*models.WorkOrder, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
		return nil, errors.New("timeout")
	}
	return &models.WorkOrder{ID: id}, nil
}

func TestSubmit_FailedSubmitKeepsLaterSubmission(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}), release: make(chan struct{})}
	safety := optimistic.New(models.SafetyConfiguration{}, models.SafetyConfiguration.Clone)
	c := &clock{now: t0}
	e := NewEngine("wo-1", safety, store, typeSet{hotWorkPermit.ID: hotWorkPermit}, c.Now, nil)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, models.Actor{UserID: "u-a"}, "hot_work", SubmitInput{})
		errA <- err
	}()
	<-store.entered

	errB := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx, models.Actor{UserID: "u-b"}, "hot_work", SubmitInput{})
		errB <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	assert.ErrorIs(t, <-errA, apperr.ErrPersistence)
	require.NoError(t, <-errB)

	status, sub := e.StatusOf("hot_work")
	require.NotNil(t, sub)
	assert.Equal(t, models.PermitPending, status)
	assert.Equal(t, "u-b", sub.SubmittedBy)
	assert.Equal(t, sub.ID, safety.Get().PermitNumbers["hot_work"])
}

func TestStatusOf_ReconstructedFromSafety(t *testing.T) {
	initial := models.SafetyConfiguration{
		Permits:       []string{"hot_work"},
		PermitNumbers: map[string]string{"hot_work": "HW-2201"},
		PermitExpiry:  map[string]time.Time{"hot_work": t0.Add(time.Hour)},
	}
	e, _, c := newTestEngine(t, initial)

	status, sub := e.StatusOf("hot_work")
	assert.Equal(t, models.PermitApproved, status)
	require.NotNil(t, sub)
	assert.Equal(t, "HW-2201", sub.ID)

	views := e.Summary()
	require.Len(t, views, 1)
	assert.Equal(t, time.Hour, views[0].Remaining)
	assert.True(t, views[0].Selected)

	c.now = t0.Add(2 * time.Hour)
	status, _ = e.StatusOf("hot_work")
	assert.Equal(t, models.PermitExpired, status)
}

func TestToggleSelection(t *testing.T) {
	e, store, _ := newTestEngine(t, models.SafetyConfiguration{})
	ctx := context.Background()

	selected, err := e.ToggleSelection(ctx, "hot_work")
	require.NoError(t, err)
	assert.True(t, selected)
	assert.Equal(t, []string{"hot_work"}, e.safety.Get().Permits)

	selected, err = e.ToggleSelection(ctx, "hot_work")
	require.NoError(t, err)
	assert.False(t, selected)
	assert.Empty(t, e.safety.Get().Permits)
	assert.Equal(t, 2, store.Calls("UpdateWorkOrder"))

	_, err = e.Submit(ctx, models.Actor{}, "hot_work", SubmitInput{})
	require.NoError(t, err)
	_, err = e.ToggleSelection(ctx, "hot_work")
	assert.ErrorIs(t, err, apperr.ErrInvariant)
	assert.True(t, e.safety.Get().HasPermit("hot_work"))
}

func TestAllActive_NoPermitsSelected(t *testing.T) {
	e, _, _ := newTestEngine(t, models.SafetyConfiguration{})
	assert.True(t, e.AllActive())
	assert.Empty(t, e.Summary())
}
