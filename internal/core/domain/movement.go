package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementEntry        MovementType = "ENTRY"
	MovementReservation  MovementType = "RESERVATION"
	MovementConsumption  MovementType = "CONSUMPTION"
	MovementCancellation MovementType = "CANCELLATION"
	MovementReturn       MovementType = "RETURN"
)

func (t MovementType) Valid() bool {
	switch t {
	case MovementEntry, MovementReservation, MovementConsumption, MovementCancellation, MovementReturn:
		return true
	}
	return false
}

// Movement is one immutable ledger entry. Corrections are new movements.
type Movement struct {
	ID                 string
	Type               MovementType
	Quantity           int
	OccurredAt         time.Time
	PartID             string
	ItemID             string
	ServiceOrderItemID string
	VehicleID          string
	ReferenceCode      string
	Notes              string
	UnitCost           decimal.Decimal
	UnitPrice          decimal.Decimal
	BalanceAfter       int // available quantity after commit
	ReservedAfter      int
	PerformedBy        string
}

// Effect returns the (available, reserved) deltas this movement applies.
func (m Movement) Effect() (available, reserved int) {
	switch m.Type {
	case MovementEntry, MovementReturn:
		return m.Quantity, 0
	case MovementReservation:
		return -m.Quantity, m.Quantity
	case MovementConsumption:
		return 0, -m.Quantity
	case MovementCancellation:
		return m.Quantity, -m.Quantity
	}
	return 0, 0
}

type MovementFilter struct {
	PartID              string
	ItemID              string
	ServiceOrderItemIDs []string
	VehicleIDs          []string
	Types               []MovementType
	Since               time.Time
	Until               time.Time
	Limit               int
}

// Matches reports whether m passes every non-zero criterion of the filter.
func (f MovementFilter) Matches(m Movement) bool {
	if f.PartID != "" && m.PartID != f.PartID {
		return false
	}
	if f.ItemID != "" && m.ItemID != f.ItemID {
		return false
	}
	if len(f.ServiceOrderItemIDs) > 0 && !contains(f.ServiceOrderItemIDs, m.ServiceOrderItemID) {
		return false
	}
	if len(f.VehicleIDs) > 0 && !contains(f.VehicleIDs, m.VehicleID) {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, m.Type) {
		return false
	}
	if !f.Since.IsZero() && m.OccurredAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !m.OccurredAt.Before(f.Until) {
		return false
	}
	return true
}

func contains[T comparable](xs []T, v T) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// Replay folds movements from zero and returns the resulting split.
func Replay(movements []Movement) (available, reserved int) {
	for _, m := range movements {
		da, dr := m.Effect()
		available += da
		reserved += dr
	}
	return available, reserved
}
