package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/parts-ledger/internal/core/domain"
	"github.com/rl1809/parts-ledger/internal/core/service"
)

// Request and response bodies shared by the HTTP and gRPC transports.

type CreateItemRequest struct {
	PartID          string           `json:"partId"`
	Location        string           `json:"location"`
	MinimumQuantity int              `json:"minimumQuantity"`
	InitialQuantity int              `json:"initialQuantity"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	PerformedBy     string           `json:"performedBy"`
}

type UpdateItemRequest struct {
	ItemID          string           `json:"itemId,omitempty"`
	MinimumQuantity *int             `json:"minimumQuantity,omitempty"`
	Location        *string          `json:"location,omitempty"`
	Cost            *decimal.Decimal `json:"cost,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Status          *string          `json:"status,omitempty"`
}

type EntryRequest struct {
	PartID        string           `json:"partId"`
	Location      string           `json:"location"`
	Quantity      int              `json:"quantity"`
	UnitCost      *decimal.Decimal `json:"unitCost,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unitPrice,omitempty"`
	ReferenceCode string           `json:"referenceCode"`
	Notes         string           `json:"notes"`
	PerformedBy   string           `json:"performedBy"`
}

type ReserveRequest struct {
	ServiceOrderItemID string `json:"serviceOrderItemId"`
	PartID             string `json:"partId"`
	Location           string `json:"location"`
	Quantity           int    `json:"quantity"`
	VehicleID          string `json:"vehicleId"`
	Notes              string `json:"notes"`
	PerformedBy        string `json:"performedBy"`
}

type ReservationChangeRequest struct {
	ServiceOrderItemID string `json:"serviceOrderItemId"`
	PartID             string `json:"partId"`
	Quantity           int    `json:"quantity"`
	Notes              string `json:"notes"`
	PerformedBy        string `json:"performedBy"`
}

type ItemResponse struct {
	ID                string          `json:"id"`
	PartID            string          `json:"partId"`
	Location          string          `json:"location"`
	AvailableQuantity int             `json:"availableQuantity"`
	ReservedQuantity  int             `json:"reservedQuantity"`
	TotalQuantity     int             `json:"totalQuantity"`
	MinimumQuantity   int             `json:"minimumQuantity"`
	AverageCost       decimal.Decimal `json:"averageCost"`
	SalePrice         decimal.Decimal `json:"salePrice"`
	Status            string          `json:"status"`
	Version           int             `json:"version"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	DeletedAt         *time.Time      `json:"deletedAt,omitempty"`
}

type MovementResponse struct {
	ID                 string          `json:"id"`
	Type               string          `json:"type"`
	Quantity           int             `json:"quantity"`
	OccurredAt         time.Time       `json:"occurredAt"`
	PartID             string          `json:"partId"`
	ItemID             string          `json:"itemId"`
	ServiceOrderItemID string          `json:"serviceOrderItemId,omitempty"`
	VehicleID          string          `json:"vehicleId,omitempty"`
	ReferenceCode      string          `json:"referenceCode,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	UnitCost           decimal.Decimal `json:"unitCost"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	BalanceAfter       int             `json:"balanceAfter"`
	ReservedAfter      int             `json:"reservedAfter"`
	PerformedBy        string          `json:"performedBy,omitempty"`
}

type MovementResultResponse struct {
	Item     ItemResponse     `json:"item"`
	Movement MovementResponse `json:"movement"`
}

type DeleteItemResponse struct {
	ItemID      string `json:"itemId"`
	SoftDeleted bool   `json:"softDeleted"`
}

type ReservationResponse struct {
	ServiceOrderItemID string `json:"serviceOrderItemId"`
	PartID             string `json:"partId"`
	ItemID             string `json:"itemId,omitempty"`
	VehicleID          string `json:"vehicleId,omitempty"`
	State              string `json:"state"`
	Reserved           int    `json:"reserved"`
	Consumed           int    `json:"consumed"`
	Cancelled          int    `json:"cancelled"`
	Returned           int    `json:"returned"`
	Open               int    `json:"open"`
	Returnable         int    `json:"returnable"`
}

type LocationAvailabilityResponse struct {
	ItemID    string `json:"itemId"`
	Location  string `json:"location"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}

type AvailabilityResponse struct {
	PartID                  string                         `json:"partId"`
	TotalAvailable          int                            `json:"totalAvailable"`
	Reserved                int                            `json:"reserved"`
	Pending                 int                            `json:"pending"`
	ByLocation              []LocationAvailabilityResponse `json:"byLocation"`
	AverageDailyConsumption float64                        `json:"averageDailyConsumption"`
	CoverageDays            *float64                       `json:"coverageDays"`
	ProjectedStockoutDate   *time.Time                     `json:"projectedStockoutDate"`
	WindowDays              int                            `json:"windowDays"`
	ComputedAt              time.Time                      `json:"computedAt"`
}

type AggregateAvailabilityResponse struct {
	SubjectID string                 `json:"subjectId"`
	Parts     []AvailabilityResponse `json:"parts"`
}

type CriticalPartResponse struct {
	ItemID            string `json:"itemId"`
	PartID            string `json:"partId"`
	PartName          string `json:"partName,omitempty"`
	SKU               string `json:"sku,omitempty"`
	Location          string `json:"location"`
	Severity          string `json:"severity"`
	AvailableQuantity int    `json:"availableQuantity"`
	ReservedQuantity  int    `json:"reservedQuantity"`
	TotalQuantity     int    `json:"totalQuantity"`
	MinimumQuantity   int    `json:"minimumQuantity"`
	Shortfall         int    `json:"shortfall"`
	TotalConsumed     int    `json:"totalConsumed"`
}

type CriticalReportResponse struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	Critical    int                    `json:"critical"`
	Warning     int                    `json:"warning"`
	Stable      int                    `json:"stable"`
	Parts       []CriticalPartResponse `json:"parts"`
}

type RecommendationResponse struct {
	PartID            string  `json:"partId"`
	PartName          string  `json:"partName,omitempty"`
	Score             float64 `json:"score"`
	Confidence        float64 `json:"confidence"`
	SampleSize        int     `json:"sampleSize"`
	IsFallback        bool    `json:"isFallback"`
	PipelineID        string  `json:"pipelineId"`
	Reason            string  `json:"reason"`
	AvailableQuantity int     `json:"availableQuantity"`
}

type PipelineResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

type ReconciliationResponse struct {
	PartID            string `json:"partId"`
	Items             int    `json:"items"`
	Movements         int    `json:"movements"`
	ExpectedAvailable int    `json:"expectedAvailable"`
	ExpectedReserved  int    `json:"expectedReserved"`
	ActualAvailable   int    `json:"actualAvailable"`
	ActualReserved    int    `json:"actualReserved"`
	Consistent        bool   `json:"consistent"`
}

func (r CreateItemRequest) toService() service.CreateItemRequest {
	return service.CreateItemRequest{
		PartID:          r.PartID,
		Location:        r.Location,
		MinimumQuantity: r.MinimumQuantity,
		InitialQuantity: r.InitialQuantity,
		Cost:            r.Cost,
		Price:           r.Price,
		PerformedBy:     r.PerformedBy,
	}
}

func (r UpdateItemRequest) toDomain() domain.ItemUpdate {
	u := domain.ItemUpdate{
		MinimumQuantity: r.MinimumQuantity,
		Location:        r.Location,
		Cost:            r.Cost,
		Price:           r.Price,
	}
	if r.Status != nil {
		status := domain.ItemStatus(*r.Status)
		u.Status = &status
	}
	return u
}

func (r EntryRequest) toService() service.EntryRequest {
	return service.EntryRequest{
		PartID:        r.PartID,
		Location:      r.Location,
		Quantity:      r.Quantity,
		UnitCost:      r.UnitCost,
		UnitPrice:     r.UnitPrice,
		ReferenceCode: r.ReferenceCode,
		Notes:         r.Notes,
		PerformedBy:   r.PerformedBy,
	}
}

func (r ReserveRequest) toService() service.ReserveRequest {
	return service.ReserveRequest{
		ServiceOrderItemID: r.ServiceOrderItemID,
		PartID:             r.PartID,
		Location:           r.Location,
		Quantity:           r.Quantity,
		VehicleID:          r.VehicleID,
		Notes:              r.Notes,
		PerformedBy:        r.PerformedBy,
	}
}

func (r ReservationChangeRequest) toService() service.ReservationChange {
	return service.ReservationChange{
		ServiceOrderItemID: r.ServiceOrderItemID,
		PartID:             r.PartID,
		Quantity:           r.Quantity,
		Notes:              r.Notes,
		PerformedBy:        r.PerformedBy,
	}
}

func newItemResponse(i domain.InventoryItem) ItemResponse {
	return ItemResponse{
		ID:                i.ID,
		PartID:            i.PartID,
		Location:          i.Location,
		AvailableQuantity: i.AvailableQuantity,
		ReservedQuantity:  i.ReservedQuantity,
		TotalQuantity:     i.TotalQuantity(),
		MinimumQuantity:   i.MinimumQuantity,
		AverageCost:       i.AverageCost,
		SalePrice:         i.SalePrice,
		Status:            string(i.Status),
		Version:           i.Version,
		CreatedAt:         i.CreatedAt,
		UpdatedAt:         i.UpdatedAt,
		DeletedAt:         i.DeletedAt,
	}
}

func newItemResponses(items []domain.InventoryItem) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, i := range items {
		out = append(out, newItemResponse(i))
	}
	return out
}

func newMovementResponse(m domain.Movement) MovementResponse {
	return MovementResponse{
		ID:                 m.ID,
		Type:               string(m.Type),
		Quantity:           m.Quantity,
		OccurredAt:         m.OccurredAt,
		PartID:             m.PartID,
		ItemID:             m.ItemID,
		ServiceOrderItemID: m.ServiceOrderItemID,
		VehicleID:          m.VehicleID,
		ReferenceCode:      m.ReferenceCode,
		Notes:              m.Notes,
		UnitCost:           m.UnitCost,
		UnitPrice:          m.UnitPrice,
		BalanceAfter:       m.BalanceAfter,
		ReservedAfter:      m.ReservedAfter,
		PerformedBy:        m.PerformedBy,
	}
}

func newMovementResponses(movements []domain.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, newMovementResponse(m))
	}
	return out
}

func newMovementResultResponse(r *service.MovementResult) MovementResultResponse {
	return MovementResultResponse{Item: newItemResponse(r.Item), Movement: newMovementResponse(r.Movement)}
}

func newReservationResponse(r domain.Reservation) ReservationResponse {
	return ReservationResponse{
		ServiceOrderItemID: r.ServiceOrderItemID,
		PartID:             r.PartID,
		ItemID:             r.ItemID,
		VehicleID:          r.VehicleID,
		State:              string(r.State()),
		Reserved:           r.Reserved,
		Consumed:           r.Consumed,
		Cancelled:          r.Cancelled,
		Returned:           r.Returned,
		Open:               r.Open(),
		Returnable:         r.Returnable(),
	}
}

func newAvailabilityResponse(av domain.InventoryAvailability) AvailabilityResponse {
	locations := make([]LocationAvailabilityResponse, 0, len(av.ByLocation))
	for _, l := range av.ByLocation {
		locations = append(locations, LocationAvailabilityResponse{
			ItemID:    l.ItemID,
			Location:  l.Location,
			Available: l.Available,
			Reserved:  l.Reserved,
		})
	}
	return AvailabilityResponse{
		PartID:                  av.PartID,
		TotalAvailable:          av.TotalAvailable,
		Reserved:                av.Reserved,
		Pending:                 av.Pending,
		ByLocation:              locations,
		AverageDailyConsumption: av.AverageDailyConsumption,
		CoverageDays:            av.CoverageDays,
		ProjectedStockoutDate:   av.ProjectedStockoutDate,
		WindowDays:              av.WindowDays,
		ComputedAt:              av.ComputedAt,
	}
}

func newAggregateAvailabilityResponse(agg domain.AggregateAvailability) AggregateAvailabilityResponse {
	parts := make([]AvailabilityResponse, 0, len(agg.Parts))
	for _, av := range agg.Parts {
		parts = append(parts, newAvailabilityResponse(av))
	}
	return AggregateAvailabilityResponse{SubjectID: agg.SubjectID, Parts: parts}
}

func newCriticalReportResponse(r domain.CriticalPartReport) CriticalReportResponse {
	parts := make([]CriticalPartResponse, 0, len(r.Parts))
	for _, p := range r.Parts {
		parts = append(parts, CriticalPartResponse{
			ItemID:            p.ItemID,
			PartID:            p.PartID,
			PartName:          p.PartName,
			SKU:               p.SKU,
			Location:          p.Location,
			Severity:          string(p.Severity),
			AvailableQuantity: p.AvailableQuantity,
			ReservedQuantity:  p.ReservedQuantity,
			TotalQuantity:     p.TotalQuantity,
			MinimumQuantity:   p.MinimumQuantity,
			Shortfall:         p.Shortfall,
			TotalConsumed:     p.TotalConsumed,
		})
	}
	return CriticalReportResponse{
		GeneratedAt: r.GeneratedAt,
		Critical:    r.Critical,
		Warning:     r.Warning,
		Stable:      r.Stable,
		Parts:       parts,
	}
}

func newRecommendationResponses(recs []domain.InventoryRecommendation) []RecommendationResponse {
	out := make([]RecommendationResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, RecommendationResponse{
			PartID:            r.PartID,
			PartName:          r.PartName,
			Score:             r.Score,
			Confidence:        r.Confidence,
			SampleSize:        r.SampleSize,
			IsFallback:        r.IsFallback,
			PipelineID:        r.PipelineID,
			Reason:            r.Reason,
			AvailableQuantity: r.AvailableQuantity,
		})
	}
	return out
}

func newPipelineResponses(infos []service.PipelineInfo) []PipelineResponse {
	out := make([]PipelineResponse, 0, len(infos))
	for _, p := range infos {
		out = append(out, PipelineResponse{ID: p.ID, Description: p.Description})
	}
	return out
}

func newReconciliationResponse(r domain.ReconciliationReport) ReconciliationResponse {
	return ReconciliationResponse{
		PartID:            r.PartID,
		Items:             r.Items,
		Movements:         r.Movements,
		ExpectedAvailable: r.ExpectedAvailable,
		ExpectedReserved:  r.ExpectedReserved,
		ActualAvailable:   r.ActualAvailable,
		ActualReserved:    r.ActualReserved,
		Consistent:        r.Consistent(),
	}
}
