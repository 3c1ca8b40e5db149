package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to WorkOrderStatus
		expected bool
	}{
		{WorkOrderOpen, WorkOrderInProgress, true},
		{WorkOrderOnHold, WorkOrderInProgress, true},
		{WorkOrderInProgress, WorkOrderCompleted, true},
		{WorkOrderOpen, WorkOrderCompleted, false},
		{WorkOrderCompleted, WorkOrderInProgress, false},
		{WorkOrderCancelled, WorkOrderOpen, false},
		{WorkOrderStatus("bogus"), WorkOrderOpen, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
	assert.True(t, WorkOrderCompleted.IsTerminal())
	assert.False(t, WorkOrderOnHold.IsTerminal())
}

func TestSafetyConfiguration_CloneIsDeep(t *testing.T) {
	orig := SafetyConfiguration{
		LotoSteps:     []LotoStep{{ID: "a", Order: 1, Description: "Isolate"}},
		Permits:       []string{"hot_work"},
		PermitNumbers: map[string]string{"hot_work": "sub-1"},
		PermitExpiry:  map[string]time.Time{"hot_work": time.Unix(100, 0)},
		PPERequired:   []string{"gloves"},
	}
	c := orig.Clone()
	c.LotoSteps[0].Description = "changed"
	c.Permits[0] = "confined_space"
	c.PermitNumbers["hot_work"] = "sub-2"
	c.PermitExpiry["hot_work"] = time.Unix(200, 0)
	c.PPERequired = append(c.PPERequired, "helmet")

	assert.Equal(t, "Isolate", orig.LotoSteps[0].Description)
	assert.Equal(t, "hot_work", orig.Permits[0])
	assert.Equal(t, "sub-1", orig.PermitNumbers["hot_work"])
	assert.Equal(t, time.Unix(100, 0), orig.PermitExpiry["hot_work"])
	assert.Len(t, orig.PPERequired, 1)
	assert.True(t, orig.HasPermit("hot_work"))
	assert.True(t, orig.HasPPE("gloves"))
}

func TestPermitSubmission_StatusAt(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	sub := PermitSubmission{Status: PermitApproved, SubmittedAt: t0, ExpiresAt: t0.Add(8 * time.Hour)}

	assert.Equal(t, PermitApproved, sub.StatusAt(t0.Add(time.Hour)))
	assert.Equal(t, PermitApproved, sub.StatusAt(t0.Add(8*time.Hour)))
	assert.Equal(t, PermitExpired, sub.StatusAt(t0.Add(9*time.Hour)))

	sub.Status = PermitPending
	assert.Equal(t, PermitExpired, sub.StatusAt(t0.Add(9*time.Hour)))

	sub.Status = PermitRejected
	assert.Equal(t, PermitRejected, sub.StatusAt(t0.Add(9*time.Hour)))
}

func TestPartLine_Recalculate(t *testing.T) {
	line := PartLine{QuantityConsumed: 4, UnitCost: 10}
	line.Recalculate()
	assert.Equal(t, 40.0, line.TotalCost)
}
