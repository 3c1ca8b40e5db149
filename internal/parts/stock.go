package parts

import (
	"sort"

	"github.com/ukydev/workorder-safety/internal/models"
)

// StockWarnings compares the requested quantity of each material with its
// stock. What remains after the request decides the severity: at or below
// zero is critical, at or below the minimum level is low. Materials missing
// from mats are skipped.
func StockWarnings(lines []models.PartLine, mats map[string]models.Material) models.StockReport {
	requested := map[string]int{}
	var order []string
	for _, l := range lines {
		if _, ok := requested[l.MaterialID]; !ok {
			order = append(order, l.MaterialID)
		}
		requested[l.MaterialID] += l.QuantityRequested
	}

	report := models.StockReport{Warnings: []models.StockWarning{}}
	for _, id := range order {
		mat, ok := mats[id]
		if !ok {
			continue
		}
		qty := requested[id]
		remaining := mat.CurrentStock - qty
		sev := Severity(remaining, mat.MinLevel)
		if sev == models.SeverityNone {
			continue
		}
		reorder := mat.ReorderQty
		if short := mat.MinLevel - remaining; short > reorder {
			reorder = short
		}
		report.Warnings = append(report.Warnings, models.StockWarning{
			MaterialID:          id,
			MaterialName:        mat.Name,
			Severity:            sev,
			Label:               sev.Label(),
			CurrentStock:        mat.CurrentStock,
			MinLevel:            mat.MinLevel,
			QuantityRequested:   qty,
			SuggestedReorderQty: reorder,
			WillCauseStockout:   remaining < 0,
			Vendor:              mat.Vendor,
		})
		if sev == models.SeverityCritical {
			report.HasCritical = true
		}
	}
	sort.SliceStable(report.Warnings, func(i, j int) bool {
		return rank(report.Warnings[i].Severity) > rank(report.Warnings[j].Severity)
	})
	report.HasWarnings = len(report.Warnings) > 0
	return report
}

// Severity classifies the stock left after a request.
func Severity(remaining, minLevel int) models.StockSeverity {
	switch {
	case remaining <= 0:
		return models.SeverityCritical
	case remaining <= minLevel:
		return models.SeverityLow
	default:
		return models.SeverityNone
	}
}

func rank(s models.StockSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}
