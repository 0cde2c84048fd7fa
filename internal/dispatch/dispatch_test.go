package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"caballus/internal/authz"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/store"
	"caballus/internal/store/memory"
)

func newHarness(now time.Time) (*Dispatcher, *memory.Store) {
	s := memory.New()
	d := NewDispatcher(s, authz.NewPolicy(), func() time.Time { return now })
	return d, s
}

func seedDriver(t *testing.T, ctx context.Context, s *memory.Store, id uuid.UUID, now time.Time, pt domain.Coordinates, minFare, rate, priority float64) {
	t.Helper()
	tx, _ := s.BeginTx(ctx)
	driver := domain.NewDriver(id)
	if err := driver.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tx.InsertDriver(ctx, *driver)
	tx.InsertDriverRate(ctx, id, store.DriverRate{MinFare: &minFare, Rate: &rate})
	tx.InsertDriverPriority(ctx, id, priority)
	tx.UpsertDriverLocation(ctx, id, store.DriverLocation{Point: pt, Expiry: now.Add(60 * time.Second)})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func seedRouteAndQuote(t *testing.T, ctx context.Context, s *memory.Store, distanceM, maxFare float64) uuid.UUID {
	t.Helper()
	tx, _ := s.BeginTx(ctx)
	route := domain.Route{
		Token:       uuid.New(),
		Origin:      domain.NewCoordinateLocation(uuid.New(), domain.Coordinates{Lat: 0, Lng: 0}, "origin"),
		Destination: domain.NewCoordinateLocation(uuid.New(), domain.Coordinates{Lat: 0.01, Lng: 0}, "destination"),
		DistanceM:   distanceM,
	}
	tx.InsertRoute(ctx, route)
	q := domain.Quote{Token: uuid.New(), Route: route, MaxFare: maxFare}
	tx.InsertQuote(ctx, q)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return q.Token
}

func TestDispatcher_HappyPath(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)

	driverID := uuid.New()
	seedDriver(t, ctx, s, driverID, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001, 0)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 11.0)

	passengerID := uuid.New()
	passenger := domain.User{ID: passengerID, Roles: []string{authz.RoleMember, authz.RolePassenger}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}

	trip, err := d.CreateTrip(ctx, passenger, quoteToken)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	if trip.Status.Kind != domain.TripSearching {
		t.Fatalf("expected Searching, got %s", trip.Status.Kind)
	}

	trip, err = d.RequestDriver(ctx, system, trip.ID)
	if err != nil {
		t.Fatalf("RequestDriver: %v", err)
	}
	if trip == nil {
		t.Fatal("expected a driver to be offered")
	}
	if trip.Status.Kind != domain.TripPendingAssignment || trip.Status.OfferDriverID != driverID {
		t.Fatalf("expected PendingAssignment{%s}, got %+v", driverID, trip.Status)
	}

	driverUser := domain.User{ID: driverID, Roles: []string{authz.RoleMember, authz.RoleDriver}}
	trip, err = d.AcceptTrip(ctx, driverUser, trip.ID)
	if err != nil {
		t.Fatalf("AcceptTrip: %v", err)
	}
	if trip.Status.Kind != domain.TripDriverEnRoute {
		t.Fatalf("expected DriverEnRoute, got %s", trip.Status.Kind)
	}
	// fare = max(min_fare, rate*(dist(driver,origin)+route.distance_m)) =
	// max(10, 0.001*(0+1100)) = max(10, 1.1) = 10: the driver sits exactly
	// at the route origin, so the minimum-fare floor dominates.
	if trip.Fare == nil || *trip.Fare < 9.99 || *trip.Fare > 10.01 {
		t.Errorf("expected fare ~= 10, got %v", trip.Fare)
	}
	if trip.DriverID == nil || *trip.DriverID != driverID {
		t.Errorf("expected trip.DriverID = %s", driverID)
	}
}

func TestDispatcher_NoSupply_CreateTripFailsInvalidInput(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 11.0)
	_ = quoteToken // quote exists, but we exercise the case where it does not

	passenger := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember, authz.RolePassenger}}
	_, err := d.CreateTrip(ctx, passenger, uuid.New())
	if err == nil {
		t.Fatal("expected InvalidInput for a missing quote")
	}
	derr, ok := err.(*dispatcherr.Error)
	if !ok || derr.Kind != dispatcherr.KindInvalidInput {
		t.Errorf("expected KindInvalidInput, got %#v", err)
	}
}

func TestDispatcher_RejectionRotatesCandidate(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)

	d1 := uuid.New()
	d2 := uuid.New()
	seedDriver(t, ctx, s, d1, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001, 0)
	seedDriver(t, ctx, s, d2, now, domain.Coordinates{Lat: 0, Lng: 0.0001}, 10, 0.001, 1)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 50.0)

	passenger := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember, authz.RolePassenger}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}

	trip, err := d.CreateTrip(ctx, passenger, quoteToken)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	trip, err = d.RequestDriver(ctx, system, trip.ID)
	if err != nil || trip == nil {
		t.Fatalf("RequestDriver: trip=%v err=%v", trip, err)
	}
	if trip.Status.OfferDriverID != d1 {
		t.Fatalf("expected d1 (lower priority) offered first, got %s", trip.Status.OfferDriverID)
	}

	candidate := domain.User{ID: d1, Roles: []string{authz.RoleMember, authz.RoleDriver}}
	trip, err = d.RejectTrip(ctx, candidate, trip.ID)
	if err != nil {
		t.Fatalf("RejectTrip: %v", err)
	}
	if trip.Status.Kind != domain.TripSearching {
		t.Fatalf("expected Searching after rejection, got %s", trip.Status.Kind)
	}

	trip, err = d.RequestDriver(ctx, system, trip.ID)
	if err != nil || trip == nil {
		t.Fatalf("RequestDriver (2nd): trip=%v err=%v", trip, err)
	}
	if trip.Status.OfferDriverID != d2 {
		t.Fatalf("expected d2 offered after d1's rejection, got %s", trip.Status.OfferDriverID)
	}
}

func TestDispatcher_RaceCancelVsAccept(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)

	driverID := uuid.New()
	seedDriver(t, ctx, s, driverID, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001, 0)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 11.0)

	passenger := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember, authz.RolePassenger}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}

	trip, err := d.CreateTrip(ctx, passenger, quoteToken)
	require.NoError(t, err, "CreateTrip")

	trip, err = d.RequestDriver(ctx, system, trip.ID)
	require.NoError(t, err, "RequestDriver")
	require.NotNil(t, trip, "expected a driver to be offered")

	driverUser := domain.User{ID: driverID, Roles: []string{authz.RoleMember, authz.RoleDriver}}
	passengerUser := domain.User{ID: passenger.ID, Roles: passenger.Roles}

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = d.CancelTrip(ctx, passengerUser, trip.ID)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = d.AcceptTrip(ctx, driverUser, trip.ID)
	}()
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorAs(t, err, new(*dispatcherr.Error), "loser should fail with a dispatcher error, not something unexpected")
		}
	}
	require.Equal(t, 1, succeeded, "expected exactly one of cancel/accept to succeed, errs=%v", results)
}

func TestDispatcher_LateDriver_CancellationPenalizesDriver(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)

	driverID := uuid.New()
	seedDriver(t, ctx, s, driverID, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001, 0)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 11.0)

	passenger := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember, authz.RolePassenger}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}
	driverUser := domain.User{ID: driverID, Roles: []string{authz.RoleMember, authz.RoleDriver}}

	trip, err := d.CreateTrip(ctx, passenger, quoteToken)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}
	trip, err = d.RequestDriver(ctx, system, trip.ID)
	if err != nil || trip == nil {
		t.Fatalf("RequestDriver: trip=%v err=%v", trip, err)
	}
	trip, err = d.AcceptTrip(ctx, driverUser, trip.ID)
	if err != nil {
		t.Fatalf("AcceptTrip: %v", err)
	}

	late := now.Add(15 * time.Minute)
	dLate, sLate := d, s
	_ = sLate
	dLate.now = func() time.Time { return late }

	trip, err = dLate.CancelTrip(ctx, passenger, trip.ID)
	if err != nil {
		t.Fatalf("CancelTrip: %v", err)
	}
	if trip.Status.PenaltyBearer != domain.PenaltyDriver {
		t.Errorf("expected driver penalty at/after deadline, got %s", trip.Status.PenaltyBearer)
	}
}

func TestDispatcher_HeartbeatExpiry_ExcludesDriverFromSearch(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	d, s := newHarness(now)

	driverID := uuid.New()
	seedDriver(t, ctx, s, driverID, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001, 0)
	quoteToken := seedRouteAndQuote(t, ctx, s, 1100, 11.0)

	passenger := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember, authz.RolePassenger}}
	system := domain.User{ID: uuid.New(), Roles: []string{domain.RoleSystem}}

	trip, err := d.CreateTrip(ctx, passenger, quoteToken)
	if err != nil {
		t.Fatalf("CreateTrip: %v", err)
	}

	expired := now.Add(61 * time.Second)
	d.now = func() time.Time { return expired }

	trip, err = d.RequestDriver(ctx, system, trip.ID)
	if err != nil {
		t.Fatalf("RequestDriver: %v", err)
	}
	if trip != nil {
		t.Fatalf("expected no candidate once the heartbeat expired, got %+v", trip)
	}
}
