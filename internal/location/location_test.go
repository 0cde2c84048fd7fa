package location

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"caballus/internal/authz"
	"caballus/internal/domain"
	"caballus/internal/store/memory"
)

type fakeProvider struct {
	coords      domain.Coordinates
	description string
	distanceM   float64
}

func (f *fakeProvider) ResolvePlace(ctx context.Context, placeID, sessionToken string) (domain.Coordinates, string, error) {
	return f.coords, f.description, nil
}

func (f *fakeProvider) Directions(ctx context.Context, origin, destination domain.Coordinates) ([]byte, float64, error) {
	return []byte("opaque"), f.distanceM, nil
}

func TestCreateLocation_Coordinates(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New(), authz.NewPolicy(), &fakeProvider{})

	user := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember}}
	loc, err := svc.CreateLocation(ctx, user, &CoordinateSource{Coordinates: domain.Coordinates{Lat: 1, Lng: 2}, Description: "home"}, nil)
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	if loc.Source != domain.LocationSourceCoordinates {
		t.Errorf("expected coordinate source, got %s", loc.Source)
	}

	found, err := svc.FindLocation(ctx, loc.Token)
	if err != nil {
		t.Fatalf("FindLocation: %v", err)
	}
	if found.Description != "home" {
		t.Errorf("expected description to round-trip, got %q", found.Description)
	}
}

func TestCreateLocation_GooglePlaces(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{coords: domain.Coordinates{Lat: 10, Lng: 20}, description: "airport"}
	svc := NewService(memory.New(), authz.NewPolicy(), provider)

	user := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember}}
	loc, err := svc.CreateLocation(ctx, user, nil, &PlaceSource{PlaceID: "abc", SessionToken: "tok"})
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	if loc.Source != domain.LocationSourceGooglePlaces || loc.PlaceID != "abc" {
		t.Errorf("expected a resolved place location, got %+v", loc)
	}
}

func TestCreateRoute_UsesProviderDistance(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{distanceM: 1500}
	svc := NewService(memory.New(), authz.NewPolicy(), provider)
	user := domain.User{ID: uuid.New(), Roles: []string{authz.RoleMember}}

	origin, err := svc.CreateLocation(ctx, user, &CoordinateSource{Coordinates: domain.Coordinates{Lat: 0, Lng: 0}}, nil)
	if err != nil {
		t.Fatalf("CreateLocation(origin): %v", err)
	}
	destination, err := svc.CreateLocation(ctx, user, &CoordinateSource{Coordinates: domain.Coordinates{Lat: 0.01, Lng: 0}}, nil)
	if err != nil {
		t.Fatalf("CreateLocation(destination): %v", err)
	}

	route, err := svc.CreateRoute(ctx, user, origin.Token, destination.Token)
	if err != nil {
		t.Fatalf("CreateRoute: %v", err)
	}
	if route.DistanceM != 1500 {
		t.Errorf("expected distance from provider, got %v", route.DistanceM)
	}
}
