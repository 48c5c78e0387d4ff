package domain

import "time"

type EventType string

const (
	EventItemQuantityChanged EventType = "inventory.item.quantity_changed"
	EventMovementRecorded    EventType = "inventory.movement.recorded"
	EventItemUpdated         EventType = "inventory.item.updated"
)

// Event is published after a mutation commits.
type Event struct {
	Type       EventType
	PartID     string
	ItemID     string
	Available  int
	Reserved   int
	Version    int
	Movement   *Movement
	OccurredAt time.Time
}

// EventsFor builds the events emitted by a committed movement.
func EventsFor(item InventoryItem, m Movement) []Event {
	return []Event{
		{
			Type:       EventMovementRecorded,
			PartID:     item.PartID,
			ItemID:     item.ID,
			Available:  item.AvailableQuantity,
			Reserved:   item.ReservedQuantity,
			Version:    item.Version,
			Movement:   &m,
			OccurredAt: m.OccurredAt,
		},
		{
			Type:       EventItemQuantityChanged,
			PartID:     item.PartID,
			ItemID:     item.ID,
			Available:  item.AvailableQuantity,
			Reserved:   item.ReservedQuantity,
			Version:    item.Version,
			OccurredAt: m.OccurredAt,
		},
	}
}
