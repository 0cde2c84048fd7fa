package domain

import "github.com/google/uuid"

// PassengerStatusKind is the persistence key for a Passenger's current state.
type PassengerStatusKind string

const (
	PassengerInactive PassengerStatusKind = "inactive"
	PassengerActive   PassengerStatusKind = "active"
)

// PassengerStatus is a kind-tagged struct; TripID is meaningful only for
// Active.
type PassengerStatus struct {
	Kind   PassengerStatusKind `json:"kind"`
	TripID uuid.UUID           `json:"trip_id,omitempty"`
}

// Passenger may hold at most one active trip at a time.
type Passenger struct {
	ID     uuid.UUID       `json:"id"`
	Status PassengerStatus `json:"status"`
}

// NewPassenger creates a Passenger in the Inactive state.
func NewPassenger(id uuid.UUID) *Passenger {
	return &Passenger{ID: id, Status: PassengerStatus{Kind: PassengerInactive}}
}

// Activate transitions Inactive -> Active{tripID}. Fails if the passenger
// already holds an active trip.
func (p *Passenger) Activate(tripID uuid.UUID) error {
	if p.Status.Kind != PassengerInactive {
		return ErrInvalidInvocation
	}
	p.Status = PassengerStatus{Kind: PassengerActive, TripID: tripID}
	return nil
}

// Deactivate transitions Active -> Inactive.
func (p *Passenger) Deactivate() error {
	if p.Status.Kind != PassengerActive {
		return ErrInvalidInvocation
	}
	p.Status = PassengerStatus{Kind: PassengerInactive}
	return nil
}
