package authz

import (
	"testing"

	"github.com/google/uuid"

	"caballus/internal/domain"
)

func TestPolicy_Platform(t *testing.T) {
	p := NewPolicy()
	anon := domain.User{}
	member := domain.User{ID: uuid.New(), Roles: []string{RoleMember}}
	passenger := domain.User{ID: uuid.New(), Roles: []string{RoleMember, RolePassenger}}

	if !p.IsAllowed(anon, "create_member", Platform{}) {
		t.Error("create_member should be allowed for anyone")
	}
	if p.IsAllowed(anon, "create_passenger", Platform{}) {
		t.Error("create_passenger should require member role")
	}
	if !p.IsAllowed(member, "create_passenger", Platform{}) {
		t.Error("create_passenger should be allowed for a member")
	}
	if !p.IsAllowed(member, "create_driver", Platform{}) {
		t.Error("create_driver should be allowed for a member")
	}
	if p.IsAllowed(member, "create_trip", Platform{}) {
		t.Error("create_trip should require passenger role")
	}
	if !p.IsAllowed(passenger, "create_trip", Platform{}) {
		t.Error("create_trip should be allowed for a passenger")
	}
}

func TestPolicy_Trip_PassengerAndDriver(t *testing.T) {
	p := NewPolicy()
	passengerID := uuid.New()
	driverID := uuid.New()
	trip := domain.Trip{
		PassengerID: passengerID,
		DriverID:    &driverID,
		Status:      domain.TripStatus{Kind: domain.TripDriverEnRoute},
	}

	passenger := domain.User{ID: passengerID}
	driver := domain.User{ID: driverID}
	stranger := domain.User{ID: uuid.New()}

	if !p.IsAllowed(passenger, "cancel", trip) {
		t.Error("passenger should be able to cancel their own trip")
	}
	if !p.IsAllowed(driver, "cancel", trip) {
		t.Error("assigned driver should be able to cancel the trip")
	}
	if p.IsAllowed(stranger, "cancel", trip) {
		t.Error("a stranger should not be able to cancel the trip")
	}
}

func TestPolicy_Trip_DriverCandidate(t *testing.T) {
	p := NewPolicy()
	candidateID := uuid.New()
	trip := domain.Trip{
		PassengerID: uuid.New(),
		Status:      domain.TripStatus{Kind: domain.TripPendingAssignment, OfferDriverID: candidateID},
	}

	candidate := domain.User{ID: candidateID}
	other := domain.User{ID: uuid.New()}

	if !p.IsAllowed(candidate, "accept", trip) {
		t.Error("the offered driver should be able to accept")
	}
	if !p.IsAllowed(candidate, "reject", trip) {
		t.Error("the offered driver should be able to reject")
	}
	if p.IsAllowed(other, "accept", trip) {
		t.Error("a non-candidate driver should not be able to accept")
	}
}

func TestPolicy_Trip_SystemOnlyActions(t *testing.T) {
	p := NewPolicy()
	trip := domain.Trip{PassengerID: uuid.New(), Status: domain.TripStatus{Kind: domain.TripSearching}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}
	passenger := domain.User{ID: trip.PassengerID}

	if !p.IsAllowed(system, "request_driver", trip) {
		t.Error("system role should be allowed to request_driver")
	}
	if p.IsAllowed(passenger, "request_driver", trip) {
		t.Error("passenger should not be allowed to request_driver directly")
	}
}
