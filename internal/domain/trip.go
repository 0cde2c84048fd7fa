package domain

import (
	"time"

	"github.com/google/uuid"
)

// TripStatusKind is the persistence key (the tagged union's discriminant)
// for a Trip's current state.
type TripStatusKind string

const (
	TripSearching          TripStatusKind = "searching"
	TripPendingAssignment  TripStatusKind = "pending_assignment"
	TripDriverEnRoute      TripStatusKind = "driver_en_route"
	TripDriverArrived      TripStatusKind = "driver_arrived"
	TripCancelled          TripStatusKind = "cancelled"
	TripCompleted          TripStatusKind = "completed"

	// offerTTL sets the Deadline recorded on a PendingAssignment offer. The
	// deadline is advisory: no transition in this package checks it.
	offerTTL = 30 * time.Second
	// enRouteTTL is how long a driver has to reach the route origin after
	// accepting.
	enRouteTTL = 15 * time.Minute
	// lateGrace is how long, after a non-late arrival, the driver must wait
	// before a driver-initiated cancellation charges the passenger instead
	// of the driver.
	lateGrace = 5 * time.Minute
)

// PenaltyBearer names which party a cancellation charges, if any.
type PenaltyBearer string

const (
	PenaltyNone      PenaltyBearer = "none"
	PenaltyPassenger PenaltyBearer = "passenger"
	PenaltyDriver    PenaltyBearer = "driver"
)

// TripStatus is a kind-tagged struct encoding the Trip status as a tagged
// union. Only the fields relevant to Kind are meaningful; the others are
// zero. This keeps the discriminant and its payload in a single struct
// rather than a Go interface hierarchy, which serializes directly into a
// JSONB blob plus a denormalized status column.
type TripStatus struct {
	Kind TripStatusKind `json:"kind"`

	// PendingAssignment
	Deadline      time.Time `json:"deadline,omitempty"`
	OfferDriverID uuid.UUID `json:"offer_driver_id,omitempty"`
	OfferFare     float64   `json:"offer_fare,omitempty"`

	// DriverArrived
	IsLate    bool      `json:"is_late,omitempty"`
	ArrivedAt time.Time `json:"arrived_at,omitempty"`

	// Cancelled
	PenaltyBearer PenaltyBearer `json:"penalty_bearer,omitempty"`
}

// Trip is the central dispatcher entity.
type Trip struct {
	ID          uuid.UUID  `json:"id"`
	Status      TripStatus `json:"status"`
	PassengerID uuid.UUID  `json:"passenger_id"`
	Route       Route      `json:"route"`
	MaxFare     float64    `json:"max_fare"`
	Fare        *float64   `json:"fare,omitempty"`
	DriverID    *uuid.UUID `json:"driver_id,omitempty"`
}

// NewTrip creates a Trip in the Searching state for a passenger who has
// committed to a quote.
func NewTrip(id, passengerID uuid.UUID, route Route, maxFare float64) *Trip {
	return &Trip{
		ID:          id,
		Status:      TripStatus{Kind: TripSearching},
		PassengerID: passengerID,
		Route:       route,
		MaxFare:     maxFare,
	}
}

// RequestDriver offers the trip to a specific driver at a specific fare.
// Legal only from Searching.
func (t *Trip) RequestDriver(now time.Time, driverID uuid.UUID, fare float64) error {
	if t.Status.Kind != TripSearching {
		return ErrInvalidInvocation
	}
	t.Status = TripStatus{
		Kind:          TripPendingAssignment,
		Deadline:      now.Add(offerTTL),
		OfferDriverID: driverID,
		OfferFare:     fare,
	}
	return nil
}

// ReleaseDriver withdraws a still-pending offer, returning the trip to
// Searching. Returns the freed driver id.
func (t *Trip) ReleaseDriver() (uuid.UUID, error) {
	if t.Status.Kind != TripPendingAssignment {
		return uuid.Nil, ErrInvalidInvocation
	}
	driverID := t.Status.OfferDriverID
	t.Status = TripStatus{Kind: TripSearching}
	return driverID, nil
}

// AssignDriver commits the offered driver: the trip moves to DriverEnRoute
// and Trip.DriverID/Trip.Fare are populated from the offer. Returns the
// assigned driver id.
func (t *Trip) AssignDriver(now time.Time) (uuid.UUID, error) {
	if t.Status.Kind != TripPendingAssignment {
		return uuid.Nil, ErrInvalidInvocation
	}
	driverID := t.Status.OfferDriverID
	fare := t.Status.OfferFare
	t.DriverID = &driverID
	t.Fare = &fare
	t.Status = TripStatus{
		Kind:     TripDriverEnRoute,
		Deadline: now.Add(enRouteTTL),
	}
	return driverID, nil
}

// Cancel terminates the trip, computing the penalty bearer and the freed
// driver id (if any) per the cancellation rules for the current sub-state.
// isPassenger distinguishes a passenger-initiated cancellation from a
// driver-initiated one; now is compared against whatever deadline is live
// in the current sub-state.
func (t *Trip) Cancel(now time.Time, isPassenger bool) (PenaltyBearer, *uuid.UUID, error) {
	var bearer PenaltyBearer
	var freed *uuid.UUID

	switch t.Status.Kind {
	case TripSearching:
		bearer = PenaltyNone

	case TripPendingAssignment:
		bearer = PenaltyNone
		d := t.Status.OfferDriverID
		freed = &d

	case TripDriverEnRoute:
		d := *t.DriverID
		freed = &d
		switch {
		case isPassenger && !now.Before(t.Status.Deadline):
			bearer = PenaltyDriver
		case isPassenger:
			bearer = PenaltyPassenger
		default:
			bearer = PenaltyDriver
		}

	case TripDriverArrived:
		d := *t.DriverID
		freed = &d
		switch {
		case isPassenger && t.Status.IsLate:
			bearer = PenaltyDriver
		case isPassenger:
			bearer = PenaltyPassenger
		case !t.Status.IsLate && !now.Before(t.Status.ArrivedAt.Add(lateGrace)):
			bearer = PenaltyPassenger
		default:
			bearer = PenaltyDriver
		}

	default:
		return "", nil, ErrInvalidInvocation
	}

	t.Status = TripStatus{Kind: TripCancelled, PenaltyBearer: bearer}
	return bearer, freed, nil
}
