package domain

type ReservationState string

const (
	ReservationUnreserved ReservationState = "UNRESERVED"
	ReservationReserved   ReservationState = "RESERVED"
	ReservationConsumed   ReservationState = "CONSUMED"
	ReservationCancelled  ReservationState = "CANCELLED"
)

// Reservation is the commitment of stock to one service-order item for one
// part. It is never stored; FoldReservation derives it from movements.
type Reservation struct {
	ServiceOrderItemID string
	PartID             string
	ItemID             string
	VehicleID          string
	Reserved           int
	Consumed           int
	Cancelled          int
	Returned           int
}

// Open is the quantity still held for the service-order item.
func (r Reservation) Open() int {
	return r.Reserved - r.Consumed - r.Cancelled
}

// Returnable is the consumed quantity not yet returned.
func (r Reservation) Returnable() int {
	return r.Consumed - r.Returned
}

func (r Reservation) State() ReservationState {
	switch {
	case r.Reserved == 0:
		return ReservationUnreserved
	case r.Open() > 0:
		return ReservationReserved
	case r.Consumed > 0:
		return ReservationConsumed
	default:
		return ReservationCancelled
	}
}

// FoldReservation accumulates the movements of one (service-order item, part)
// pair. Movements for other keys are ignored. ItemID is the item of the
// latest reservation movement.
func FoldReservation(serviceOrderItemID, partID string, movements []Movement) Reservation {
	r := Reservation{ServiceOrderItemID: serviceOrderItemID, PartID: partID}
	for _, m := range movements {
		if m.ServiceOrderItemID != serviceOrderItemID || m.PartID != partID {
			continue
		}
		if r.ItemID == "" || m.Type == MovementReservation {
			r.ItemID = m.ItemID
		}
		if r.VehicleID == "" {
			r.VehicleID = m.VehicleID
		}
		switch m.Type {
		case MovementReservation:
			r.Reserved += m.Quantity
		case MovementConsumption:
			r.Consumed += m.Quantity
		case MovementCancellation:
			r.Cancelled += m.Quantity
		case MovementReturn:
			r.Returned += m.Quantity
		}
	}
	return r
}

// FoldReservations groups movements by part for a single service-order item.
func FoldReservations(serviceOrderItemID string, movements []Movement) []Reservation {
	var order []string
	seen := make(map[string]bool)
	for _, m := range movements {
		if m.ServiceOrderItemID != serviceOrderItemID || seen[m.PartID] {
			continue
		}
		seen[m.PartID] = true
		order = append(order, m.PartID)
	}
	out := make([]Reservation, 0, len(order))
	for _, partID := range order {
		out = append(out, FoldReservation(serviceOrderItemID, partID, movements))
	}
	return out
}
