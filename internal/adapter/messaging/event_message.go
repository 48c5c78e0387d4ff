package messaging

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

// eventMessage is the wire shape shared by every publisher.
type eventMessage struct {
	Type       string           `json:"type"`
	PartID     string           `json:"partId"`
	ItemID     string           `json:"itemId"`
	Available  int              `json:"availableQuantity"`
	Reserved   int              `json:"reservedQuantity"`
	Version    int              `json:"version"`
	OccurredAt time.Time        `json:"occurredAt"`
	Movement   *movementMessage `json:"movement,omitempty"`
}

type movementMessage struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Quantity           int    `json:"quantity"`
	ServiceOrderItemID string `json:"serviceOrderItemId,omitempty"`
	VehicleID          string `json:"vehicleId,omitempty"`
	ReferenceCode      string `json:"referenceCode,omitempty"`
	UnitCost           string `json:"unitCost"`
	UnitPrice          string `json:"unitPrice"`
	BalanceAfter       int    `json:"balanceAfter"`
	ReservedAfter      int    `json:"reservedAfter"`
	PerformedBy        string `json:"performedBy,omitempty"`
}

func encodeEvent(e domain.Event) ([]byte, error) {
	msg := eventMessage{
		Type:       string(e.Type),
		PartID:     e.PartID,
		ItemID:     e.ItemID,
		Available:  e.Available,
		Reserved:   e.Reserved,
		Version:    e.Version,
		OccurredAt: e.OccurredAt,
	}
	if m := e.Movement; m != nil {
		msg.Movement = &movementMessage{
			ID:                 m.ID,
			Type:               string(m.Type),
			Quantity:           m.Quantity,
			ServiceOrderItemID: m.ServiceOrderItemID,
			VehicleID:          m.VehicleID,
			ReferenceCode:      m.ReferenceCode,
			UnitCost:           m.UnitCost.StringFixed(4),
			UnitPrice:          m.UnitPrice.StringFixed(4),
			BalanceAfter:       m.BalanceAfter,
			ReservedAfter:      m.ReservedAfter,
			PerformedBy:        m.PerformedBy,
		}
	}
	return json.Marshal(msg)
}

// eventID identifies a message for consumer-side dedup.
func eventID(e domain.Event) string {
	if e.Movement != nil {
		return string(e.Type) + ":" + e.Movement.ID
	}
	return string(e.Type) + ":" + e.ItemID + ":" + strconv.Itoa(e.Version)
}
