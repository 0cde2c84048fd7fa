package quote

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"caballus/internal/domain"
	"caballus/internal/store"
	"caballus/internal/store/memory"
)

func seedDriver(t *testing.T, ctx context.Context, s *memory.Store, now time.Time, pt domain.Coordinates, minFare, rate float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	tx, _ := s.BeginTx(ctx)
	d := domain.NewDriver(id)
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tx.InsertDriver(ctx, *d)
	tx.InsertDriverRate(ctx, id, store.DriverRate{MinFare: &minFare, Rate: &rate})
	tx.InsertDriverPriority(ctx, id, 0)
	tx.UpsertDriverLocation(ctx, id, store.DriverLocation{Point: pt, Expiry: now.Add(time.Minute)})
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return id
}

func seedRoute(t *testing.T, ctx context.Context, s *memory.Store, distanceM float64) uuid.UUID {
	t.Helper()
	tx, _ := s.BeginTx(ctx)
	route := domain.Route{
		Token:       uuid.New(),
		Origin:      domain.NewCoordinateLocation(uuid.New(), domain.Coordinates{Lat: 0, Lng: 0}, "origin"),
		Destination: domain.NewCoordinateLocation(uuid.New(), domain.Coordinates{Lat: 0.01, Lng: 0}, "destination"),
		DistanceM:   distanceM,
	}
	tx.InsertRoute(ctx, route)
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return route.Token
}

func TestCreateQuote_HappyPath(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := memory.New()
	seedDriver(t, ctx, s, now, domain.Coordinates{Lat: 0, Lng: 0}, 10, 0.001)
	routeToken := seedRoute(t, ctx, s, 1100)

	svc := NewService(s, func() time.Time { return now })
	q, err := svc.CreateQuote(ctx, routeToken)
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if q == nil {
		t.Fatal("expected a quote, got absent")
	}
	// max(10, 0.001*(0+1100)) = max(10, 1.1) = 10: the lone driver sits
	// exactly at the route origin, so the minimum-fare floor dominates.
	if q.MaxFare < 9.99 || q.MaxFare > 10.01 {
		t.Errorf("expected max_fare ~= 10, got %v", q.MaxFare)
	}

}

func TestCreateQuote_NoSupplyIsAbsent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := memory.New()
	routeToken := seedRoute(t, ctx, s, 1100)

	svc := NewService(s, func() time.Time { return now })
	q, err := svc.CreateQuote(ctx, routeToken)
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if q != nil {
		t.Fatalf("expected absent quote, got %+v", q)
	}
}

func TestCreateQuote_MissingRoute(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s, nil)
	_, err := svc.CreateQuote(ctx, uuid.New())
	if err == nil {
		t.Fatal("expected an error for a missing route")
	}
}
