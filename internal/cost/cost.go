// Package cost derives the labor and parts cost of a work order.
package cost

import "github.com/ukydev/workorder-safety/internal/models"

// Summarize computes the cost summary. Each line costs its consumed quantity
// times its unit cost; lines sharing an id are counted once.
// When budget is set the remaining budget is reported too.
func Summarize(laborHours, laborRate float64, lines []models.PartLine, budget *float64) models.CostSummary {
	if laborHours < 0 {
		laborHours = 0
	}
	s := models.CostSummary{
		LaborHours: laborHours,
		LaborRate:  laborRate,
		LaborCost:  laborHours * laborRate,
	}
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.ID != "" {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
		}
		l.Recalculate()
		s.PartsCost += l.TotalCost
	}
	s.TotalCost = s.LaborCost + s.PartsCost

	if budget != nil {
		allocated := *budget
		remaining := allocated - s.TotalCost
		s.BudgetAllocated = &allocated
		s.BudgetRemaining = &remaining
		s.OverBudget = remaining < 0
	}
	return s
}
