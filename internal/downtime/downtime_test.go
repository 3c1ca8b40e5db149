package downtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/models"
)

var t0 = time.Date(2026, 2, 17, 6, 30, 0, 0, time.UTC)

func ongoing() models.DowntimeEvent {
	return models.DowntimeEvent{
		ID:                "dt-1",
		WorkOrderID:       "wo-1",
		Status:            models.DowntimeOngoing,
		ProductionStopped: true,
		StoppedAt:         t0,
		Room:              "Line 3",
	}
}

func TestResolveScenario(t *testing.T) {
	ev := ongoing()

	_, err := Resolve(ev, t0.Add(-time.Minute), "", "u-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "resumed_at", apperr.FieldOf(err))
	assert.True(t, ev.IsOngoing())

	out, err := Resolve(ev, t0.Add(47*time.Minute), "belt replaced", "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.DowntimeCompleted, out.Status)
	require.NotNil(t, out.DurationMinutes)
	assert.Equal(t, 47, *out.DurationMinutes)
	assert.Equal(t, "belt replaced", out.Notes)

	_, err = Resolve(out, t0.Add(50*time.Minute), "", "u-1")
	assert.ErrorIs(t, err, apperr.ErrInvariant, "completed events are never overwritten")
}

func TestDurationMinutes(t *testing.T) {
	assert.Equal(t, 0, DurationMinutes(t0, t0))
	assert.Equal(t, 0, DurationMinutes(t0, t0.Add(29*time.Second)))
	assert.Equal(t, 1, DurationMinutes(t0, t0.Add(30*time.Second)))
	assert.Equal(t, 90, DurationMinutes(t0, t0.Add(90*time.Minute+10*time.Second)))
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{5 * time.Second, "5s"},
		{47 * time.Minute, "47m 0s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{26 * time.Hour, "26h 0m 0s"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatElapsed(tt.d), tt.d.String())
	}
}

func TestElapsed(t *testing.T) {
	d, ok := Elapsed(ongoing(), t0.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	resolved, err := Resolve(ongoing(), t0.Add(time.Minute), "", "")
	require.NoError(t, err)
	_, ok = Elapsed(resolved, t0.Add(time.Hour))
	assert.False(t, ok)
}

func TestResumeAdjuster(t *testing.T) {
	now := t0.Add(20 * time.Minute)
	a := NewResumeAdjuster(ongoing(), func() time.Time { return now })
	assert.Equal(t, now, a.Proposed())

	require.NoError(t, a.Nudge(-5*time.Minute))
	assert.Equal(t, t0.Add(15*time.Minute), a.Proposed())

	assert.False(t, a.CanNudge(-30*time.Minute))
	err := a.Nudge(-30 * time.Minute)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, t0.Add(15*time.Minute), a.Proposed(), "rejected nudge leaves the proposal alone")

	assert.ErrorIs(t, a.Nudge(time.Minute), apperr.ErrValidation)

	require.NoError(t, a.Nudge(30*time.Minute))
	require.NoError(t, a.SnapToNow())
	assert.Equal(t, now, a.Proposed())
	assert.NoError(t, a.Validate())
}

func TestTracker_Resolve(t *testing.T) {
	store := db.NewMemoryStore()
	store.PutDowntime(ongoing())
	ev := ongoing()
	tr := NewTracker(&ev, store, func() time.Time { return t0.Add(time.Hour) }, nil)
	ctx := context.Background()

	assert.True(t, tr.RequiresResumeConfirmation())

	_, err := tr.Resolve(ctx, t0.Add(-time.Minute), "", "u-1")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, store.Calls("ResolveDowntime"))

	store.FailNext("ResolveDowntime", errors.New("timeout"))
	_, err = tr.Resolve(ctx, t0.Add(47*time.Minute), "", "u-1")
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	got, _ := tr.Event()
	assert.True(t, got.IsOngoing(), "failed persistence keeps the event ongoing")

	out, err := tr.Resolve(ctx, t0.Add(47*time.Minute), "", "u-1")
	require.NoError(t, err)
	assert.Equal(t, 47, *out.DurationMinutes)
	assert.False(t, tr.RequiresResumeConfirmation())
	_, ok := tr.Elapsed()
	assert.False(t, ok)

	_, err = tr.Resolve(ctx, t0.Add(50*time.Minute), "", "u-1")
	assert.ErrorIs(t, err, apperr.ErrInvariant)
	assert.Equal(t, 2, store.Calls("ResolveDowntime"))
}

func TestTracker_NoEvent(t *testing.T) {
	tr := NewTracker(nil, db.NewMemoryStore(), nil, nil)
	_, ok := tr.Event()
	assert.False(t, ok)
	assert.False(t, tr.RequiresResumeConfirmation())

	_, err := tr.Resolve(context.Background(), t0, "", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = tr.NewAdjuster()
	assert.ErrorIs(t, err, apperr.ErrInvariant)
}

type countdown struct {
	left int32
}

func (c *countdown) Elapsed() (time.Duration, bool) {
	n := atomic.AddInt32(&c.left, -1)
	return time.Duration(10-n) * time.Second, n >= 0
}

func TestWatch_StopsWhenResolved(t *testing.T) {
	src := &countdown{left: 3}
	var ticks []Tick
	err := Watch(context.Background(), src, time.Millisecond, func(tk Tick) { ticks = append(ticks, tk) })
	require.NoError(t, err)
	assert.Len(t, ticks, 3)
	assert.Equal(t, "8s", ticks[0].Display)
}

func TestWatch_StopsOnCancel(t *testing.T) {
	src := &countdown{left: 1 << 20}
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	err := Watch(ctx, src, time.Millisecond, func(Tick) {
		n++
		if n == 2 {
			cancel()
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, n, 2)
}

func TestWatch_ResolvedEventNeverTicks(t *testing.T) {
	resolved, err := Resolve(ongoing(), t0.Add(time.Minute), "", "")
	require.NoError(t, err)
	tr := NewTracker(&resolved, db.NewMemoryStore(), nil, nil)
	called := false
	require.NoError(t, Watch(context.Background(), tr, time.Millisecond, func(Tick) { called = true }))
	assert.False(t, called)
}
