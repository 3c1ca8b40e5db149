package models

// Material is an inventory item that can be consumed on a work order.
type Material struct {
	ID            string  `json:"id" bson:"_id"`
	Name          string  `json:"name" bson:"name"`
	SKU           string  `json:"sku" bson:"sku"`
	Barcode       string  `json:"barcode" bson:"barcode"`
	UnitOfMeasure string  `json:"unit_of_measure" bson:"unit_of_measure"`
	UnitCost      float64 `json:"unit_cost" bson:"unit_cost"`
	CurrentStock  int     `json:"current_stock" bson:"current_stock"`
	MinLevel      int     `json:"min_level" bson:"min_level"`
	ReorderQty    int     `json:"reorder_qty" bson:"reorder_qty"`
	Vendor        string  `json:"vendor" bson:"vendor"`
	Warehouse     string  `json:"warehouse" bson:"warehouse"`
	Bin           string  `json:"bin" bson:"bin"`
}

// MaterialQuery searches the material catalog. Query matches name, SKU or
// barcode; IDs restricts the result to the given materials.
type MaterialQuery struct {
	Query string   `json:"query,omitempty"`
	IDs   []string `json:"ids,omitempty"`
	Limit int64    `json:"limit,omitempty"`
}

// PartStatus is the issue state of a part line.
type PartStatus string

const (
	PartPending       PartStatus = "pending"
	PartIssued        PartStatus = "issued"
	PartConsumed      PartStatus = "consumed"
	PartPartialReturn PartStatus = "partial_return"
	PartFullReturn    PartStatus = "full_return"
)

// PartSource tells whether a line was added on the work order or came from procurement.
type PartSource string

const (
	SourceAdHoc       PartSource = "ad_hoc"
	SourceProcurement PartSource = "procurement"
)

// PartLine is one material line consumed on a work order.
type PartLine struct {
	ID                string     `json:"id" bson:"id"`
	MaterialID        string     `json:"material_id" bson:"material_id"`
	MaterialName      string     `json:"material_name" bson:"material_name"`
	SKU               string     `json:"sku" bson:"sku"`
	QuantityRequested int        `json:"quantity_requested" bson:"quantity_requested"`
	QuantityApproved  int        `json:"quantity_approved" bson:"quantity_approved"`
	QuantityIssued    int        `json:"quantity_issued" bson:"quantity_issued"`
	QuantityReturned  int        `json:"quantity_returned" bson:"quantity_returned"`
	QuantityConsumed  int        `json:"quantity_consumed" bson:"quantity_consumed"`
	UnitOfMeasure     string     `json:"unit_of_measure" bson:"unit_of_measure"`
	UnitCost          float64    `json:"unit_cost" bson:"unit_cost"`
	TotalCost         float64    `json:"total_cost" bson:"total_cost"`
	Warehouse         string     `json:"warehouse" bson:"warehouse"`
	Bin               string     `json:"bin" bson:"bin"`
	Status            PartStatus `json:"status" bson:"status"`
	Source            PartSource `json:"source" bson:"source"`
}

// Recalculate refreshes TotalCost from the consumed quantity.
func (p *PartLine) Recalculate() {
	p.TotalCost = float64(p.QuantityConsumed) * p.UnitCost
}

// PartRequestGroup is a procurement request and its lines.
type PartRequestGroup struct {
	ID          string     `json:"id" bson:"_id"`
	WorkOrderID string     `json:"work_order_id" bson:"work_order_id"`
	Number      string     `json:"number" bson:"number"`
	Status      string     `json:"status" bson:"status"` // "draft", "submitted", "approved", "issued", "closed"
	RequestedBy string     `json:"requested_by" bson:"requested_by"`
	Lines       []PartLine `json:"lines" bson:"lines"`
}

// StockSeverity classifies how far a material falls short of its minimum.
type StockSeverity string

const (
	SeverityNone     StockSeverity = "none"
	SeverityLow      StockSeverity = "low"
	SeverityCritical StockSeverity = "critical"
)

// Label returns the display label for the severity.
func (s StockSeverity) Label() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityCritical:
		return "Critical"
	default:
		return "OK"
	}
}

// StockWarning is a derived stock risk for one material.
type StockWarning struct {
	MaterialID          string        `json:"material_id"`
	MaterialName        string        `json:"material_name"`
	Severity            StockSeverity `json:"severity"`
	Label               string        `json:"label"`
	CurrentStock        int           `json:"current_stock"`
	MinLevel            int           `json:"min_level"`
	QuantityRequested   int           `json:"quantity_requested"`
	SuggestedReorderQty int           `json:"suggested_reorder_qty"`
	WillCauseStockout   bool          `json:"will_cause_stockout"`
	Vendor              string        `json:"vendor"`
}

// StockReport is the set of warnings for an effective parts list.
type StockReport struct {
	Warnings    []StockWarning `json:"warnings"`
	HasWarnings bool           `json:"has_warnings"`
	HasCritical bool           `json:"has_critical"`
}
