package domain

// Vehicle is the slice of vehicle identity used for history matching.
type Vehicle struct {
	ID       string
	ClientID string
	Model    string
}

// ServiceOrderItem references a line of a service order owned elsewhere.
type ServiceOrderItem struct {
	ID             string
	ServiceOrderID string
	VehicleID      string
	Description    string
}
