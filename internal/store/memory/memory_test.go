package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"caballus/internal/domain"
	"caballus/internal/store"
)

func TestStore_TripRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	trip := *domain.NewTrip(uuid.New(), uuid.New(), domain.Route{DistanceM: 1000}, 20)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.InsertTrip(ctx, trip); err != nil {
		t.Fatalf("InsertTrip: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.BeginTx(ctx)
	got, err := tx2.FetchTripForUpdate(ctx, trip.ID)
	if err != nil {
		t.Fatalf("FetchTripForUpdate: %v", err)
	}
	if got.ID != trip.ID {
		t.Errorf("expected trip %s, got %s", trip.ID, got.ID)
	}
	tx2.Rollback(ctx)
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	tx, _ := s.BeginTx(ctx)
	tx.InsertDriver(ctx, *domain.NewDriver(id))
	tx.Rollback(ctx)

	tx2, _ := s.BeginTx(ctx)
	_, err := tx2.FetchDriverForUpdate(ctx, id)
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after rollback, got %v", err)
	}
	tx2.Rollback(ctx)
}

func TestStore_SearchCandidates_FiltersByEligibility(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	available := uuid.New()
	offline := uuid.New()
	staleLocation := uuid.New()

	tx, _ := s.BeginTx(ctx)
	for _, id := range []uuid.UUID{available, offline, staleLocation} {
		d := domain.NewDriver(id)
		d.Start()
		tx.InsertDriver(ctx, *d)
		minFare, rate := 10.0, 0.001
		tx.InsertDriverRate(ctx, id, store.DriverRate{MinFare: &minFare, Rate: &rate})
		tx.InsertDriverPriority(ctx, id, 0)
	}
	tx.UpsertDriverLocation(ctx, available, store.DriverLocation{Point: domain.Coordinates{Lat: 0, Lng: 0}, Expiry: now.Add(time.Minute)})
	tx.UpsertDriverLocation(ctx, offline, store.DriverLocation{Point: domain.Coordinates{Lat: 0, Lng: 0}, Expiry: now.Add(time.Minute)})
	tx.UpsertDriverLocation(ctx, staleLocation, store.DriverLocation{Point: domain.Coordinates{Lat: 0, Lng: 0}, Expiry: now.Add(-time.Minute)})

	offlineDriver, _ := tx.FetchDriverForUpdate(ctx, offline)
	offlineDriver.Stop()
	tx.UpdateDriver(ctx, offlineDriver)

	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tx2, _ := s.BeginTx(ctx)
	defer tx2.Rollback(ctx)
	candidates, err := tx2.SearchCandidates(ctx, now, domain.Coordinates{Lat: 0, Lng: 0}, 2000, 0, 100, uuid.New())
	if err != nil {
		t.Fatalf("SearchCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].DriverID != available {
		t.Fatalf("expected only %s eligible, got %+v", available, candidates)
	}
}
