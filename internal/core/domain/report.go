package domain

import "time"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityStable   Severity = "STABLE"
)

// Rank orders severities from most to least urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	}
	return 2
}

// ClassifySeverity applies the restock thresholds to one item.
func ClassifySeverity(available, minimum int, warningMultiplier float64) Severity {
	if available < minimum {
		return SeverityCritical
	}
	if float64(available) < float64(minimum)*warningMultiplier {
		return SeverityWarning
	}
	return SeverityStable
}

type CriticalPart struct {
	ItemID            string
	PartID            string
	PartName          string
	SKU               string
	Location          string
	Severity          Severity
	AvailableQuantity int
	ReservedQuantity  int
	TotalQuantity     int
	MinimumQuantity   int
	Shortfall         int
	TotalConsumed     int
}

type CriticalPartReport struct {
	GeneratedAt time.Time
	Parts       []CriticalPart
	Critical    int
	Warning     int
	Stable      int
}

type LocationAvailability struct {
	ItemID    string
	Location  string
	Available int
	Reserved  int
}

type InventoryAvailability struct {
	PartID                  string
	TotalAvailable          int
	Reserved                int
	Pending                 int
	ByLocation              []LocationAvailability
	AverageDailyConsumption float64
	CoverageDays            *float64
	ProjectedStockoutDate   *time.Time
	WindowDays              int
	ComputedAt              time.Time
}

// AggregateAvailability is the availability of every part a vehicle or
// client has historically used.
type AggregateAvailability struct {
	SubjectID string
	Parts     []InventoryAvailability
}

type RecommendationQuery struct {
	VehicleID      string
	ServiceOrderID string
	Limit          int
	PipelineID     string
}

type InventoryRecommendation struct {
	PartID            string
	PartName          string
	Score             float64
	Confidence        float64
	SampleSize        int
	IsFallback        bool
	PipelineID        string
	Reason            string
	AvailableQuantity int
}

type ReconciliationReport struct {
	PartID            string
	Items             int
	Movements         int
	ExpectedAvailable int
	ExpectedReserved  int
	ActualAvailable   int
	ActualReserved    int
}

func (r ReconciliationReport) Consistent() bool {
	return r.ExpectedAvailable == r.ActualAvailable && r.ExpectedReserved == r.ActualReserved
}
