package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	ItemStatusActive   ItemStatus = "ACTIVE"
	ItemStatusInactive ItemStatus = "INACTIVE"
)

func (s ItemStatus) Valid() bool {
	return s == ItemStatusActive || s == ItemStatusInactive
}

// InventoryItem is the current-state record of one part at one location.
// Quantities change only through movements.
type InventoryItem struct {
	ID                string
	PartID            string
	AvailableQuantity int
	ReservedQuantity  int
	MinimumQuantity   int
	Location          string
	AverageCost       decimal.Decimal
	SalePrice         decimal.Decimal
	Status            ItemStatus
	Version           int // optimistic locking
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
}

func (i InventoryItem) TotalQuantity() int {
	return i.AvailableQuantity + i.ReservedQuantity
}

func (i InventoryItem) Active() bool {
	return i.Status == ItemStatusActive && i.DeletedAt == nil
}

// ItemUpdate carries the editable, non-quantity fields of an item.
type ItemUpdate struct {
	MinimumQuantity *int
	Location        *string
	Cost            *decimal.Decimal
	Price           *decimal.Decimal
	Status          *ItemStatus
}

func (u ItemUpdate) Empty() bool {
	return u.MinimumQuantity == nil && u.Location == nil && u.Cost == nil && u.Price == nil && u.Status == nil
}

type ItemFilter struct {
	PartID         string
	Location       string
	ActiveOnly     bool
	IncludeDeleted bool
}

// Matches applies the filter to one item.
func (f ItemFilter) Matches(i InventoryItem) bool {
	if f.PartID != "" && i.PartID != f.PartID {
		return false
	}
	if f.Location != "" && i.Location != f.Location {
		return false
	}
	if f.ActiveOnly && !i.Active() {
		return false
	}
	if !f.IncludeDeleted && i.DeletedAt != nil {
		return false
	}
	return true
}

// Part is the external catalog record. It is read, never owned.
type Part struct {
	ID           string
	SKU          string
	Name         string
	Manufacturer string
	UnitCost     decimal.Decimal
	UnitPrice    decimal.Decimal
	Active       bool
}
