// Package authz implements the dispatcher's authorization policy: a pure,
// declarative decision function over (actor, action, resource). It performs
// no I/O and holds no mutable state, so a single Policy value is shared
// across every request handler.
package authz

import "caballus/internal/domain"

// Role labels checked against domain.User.Roles. Dynamic roles such as
// "driver_candidate" are never stored on the user; they are derived from
// the resource's current state at decision time.
const (
	RoleMember    = "member"
	RolePassenger = "passenger"
	RoleDriver    = "driver"
)

// Platform is the singleton resource for actions that are not scoped to a
// specific Trip, Driver, or Passenger.
type Platform struct{}

// Policy answers is_allowed(actor, action, resource). It is stateless;
// NewPolicy exists only for symmetry with the rest of the engine's
// constructors and to leave room for future configuration.
type Policy struct{}

// NewPolicy constructs the (stateless) authorization policy.
func NewPolicy() *Policy {
	return &Policy{}
}

// IsAllowed dispatches on the concrete type of resource. Unrecognized
// resource/action combinations deny by default.
func (p *Policy) IsAllowed(actor domain.User, action string, resource any) bool {
	switch r := resource.(type) {
	case Platform:
		return p.allowOnPlatform(actor, action)
	case domain.Trip:
		return p.allowOnTrip(actor, action, r)
	case domain.Driver:
		return p.allowOnDriver(actor, action, r)
	case domain.Passenger:
		return p.allowOnPassenger(actor, action, r)
	default:
		return false
	}
}

func (p *Policy) allowOnPlatform(actor domain.User, action string) bool {
	switch action {
	case "create_member":
		return true
	case "create_passenger", "create_driver", "create_location", "create_route":
		return actor.HasRole(RoleMember)
	case "create_trip":
		return actor.HasRole(RolePassenger)
	default:
		return false
	}
}

func (p *Policy) allowOnTrip(actor domain.User, action string, trip domain.Trip) bool {
	isPassenger := actor.ID == trip.PassengerID
	isDriver := trip.DriverID != nil && actor.ID == *trip.DriverID
	isCandidate := trip.Status.Kind == domain.TripPendingAssignment && actor.ID == trip.Status.OfferDriverID
	isSystem := actor.HasRole(domain.RoleSystem)

	switch action {
	case "read":
		return isPassenger || isDriver || isCandidate || isSystem
	case "cancel":
		return isPassenger || isDriver
	case "accept", "reject":
		return isCandidate
	case "request_driver", "release_driver":
		return isSystem
	default:
		return false
	}
}

// allowOnDriver covers a driver's self-management of their own record
// (start/stop, rate updates, location heartbeats), extending the table the
// same way Trip actions are scoped to the passenger/driver/candidate whose
// identity matches the resource.
func (p *Policy) allowOnDriver(actor domain.User, action string, driver domain.Driver) bool {
	switch action {
	case "read", "start", "stop", "update_rate", "update_location":
		return actor.ID == driver.ID
	default:
		return false
	}
}

func (p *Policy) allowOnPassenger(actor domain.User, action string, passenger domain.Passenger) bool {
	switch action {
	case "read":
		return actor.ID == passenger.ID
	default:
		return false
	}
}
