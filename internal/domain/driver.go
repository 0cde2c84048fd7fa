package domain

import "github.com/google/uuid"

// DriverStatusKind is the persistence key for a Driver's current state.
type DriverStatusKind string

const (
	DriverInactive  DriverStatusKind = "inactive"
	DriverAvailable DriverStatusKind = "available"
	DriverRequested DriverStatusKind = "requested"
	DriverAssigned  DriverStatusKind = "assigned"
)

// DriverStatus is a kind-tagged struct; TripID is meaningful only for
// Requested/Assigned.
type DriverStatus struct {
	Kind   DriverStatusKind `json:"kind"`
	TripID uuid.UUID        `json:"trip_id,omitempty"`
}

// Driver is the dispatcher's view of a driver's availability. Rates,
// location, priority, and rejections live in side tables (see
// internal/store) rather than on this struct.
type Driver struct {
	ID     uuid.UUID    `json:"id"`
	Status DriverStatus `json:"status"`
}

// NewDriver creates a Driver in the Inactive state.
func NewDriver(id uuid.UUID) *Driver {
	return &Driver{ID: id, Status: DriverStatus{Kind: DriverInactive}}
}

// IsAvailable reports whether the driver can be offered a trip right now.
func (d *Driver) IsAvailable() bool {
	return d.Status.Kind == DriverAvailable
}

// Start transitions Inactive -> Available.
func (d *Driver) Start() error {
	if d.Status.Kind != DriverInactive {
		return ErrInvalidInvocation
	}
	d.Status = DriverStatus{Kind: DriverAvailable}
	return nil
}

// Stop transitions Available -> Inactive.
func (d *Driver) Stop() error {
	if d.Status.Kind != DriverAvailable {
		return ErrInvalidInvocation
	}
	d.Status = DriverStatus{Kind: DriverInactive}
	return nil
}

// Request transitions Available -> Requested{tripID}, offering the driver a
// trip.
func (d *Driver) Request(tripID uuid.UUID) error {
	if d.Status.Kind != DriverAvailable {
		return ErrInvalidInvocation
	}
	d.Status = DriverStatus{Kind: DriverRequested, TripID: tripID}
	return nil
}

// Assign transitions Requested{t} -> Assigned{t}, the driver having accepted.
func (d *Driver) Assign() error {
	if d.Status.Kind != DriverRequested {
		return ErrInvalidInvocation
	}
	d.Status = DriverStatus{Kind: DriverAssigned, TripID: d.Status.TripID}
	return nil
}

// Free returns the driver to Available. It is idempotent: calling it while
// already Available or Inactive is a no-op rather than an error, since
// cancellation races may call Free on a driver that another in-flight
// transaction already freed.
func (d *Driver) Free() {
	if d.Status.Kind == DriverRequested || d.Status.Kind == DriverAssigned {
		d.Status = DriverStatus{Kind: DriverAvailable}
	}
}
