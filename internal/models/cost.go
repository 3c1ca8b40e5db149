package models

// CostSummary is the derived labor and parts cost of a work order.
type CostSummary struct {
	LaborHours      float64  `json:"labor_hours"`
	LaborRate       float64  `json:"labor_rate"` // in USD per hour
	LaborCost       float64  `json:"labor_cost"`
	PartsCost       float64  `json:"parts_cost"`
	TotalCost       float64  `json:"total_cost"`
	BudgetAllocated *float64 `json:"budget_allocated,omitempty"`
	BudgetRemaining *float64 `json:"budget_remaining,omitempty"`
	OverBudget      bool     `json:"over_budget"`
}
