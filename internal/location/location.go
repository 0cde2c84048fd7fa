// Package location implements create_location/find_location and
// create_route/find_route: the thin persistence-plus-GeoProvider layer that
// produces the Location and Route values a quote is built from.
package location

import (
	"context"

	"github.com/google/uuid"

	"caballus/internal/authz"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/geo"
	"caballus/internal/store"
)

// Service implements create_location/find_location/create_route/find_route.
type Service struct {
	store    store.Store
	policy   *authz.Policy
	provider geo.Provider
}

// NewService constructs a location Service.
func NewService(s store.Store, policy *authz.Policy, provider geo.Provider) *Service {
	return &Service{store: s, policy: policy, provider: provider}
}

// CoordinateSource is a caller-supplied point.
type CoordinateSource struct {
	Coordinates domain.Coordinates
	Description string
}

// PlaceSource is a reference into the GeoProvider's place index.
type PlaceSource struct {
	PlaceID      string
	SessionToken string
}

// CreateLocation resolves either a caller-supplied coordinate pair or a
// GeoProvider place id into a persisted Location. Exactly one of coord/place
// should be non-nil.
func (s *Service) CreateLocation(ctx context.Context, user domain.User, coord *CoordinateSource, place *PlaceSource) (*domain.Location, error) {
	if !s.policy.IsAllowed(user, "create_location", authz.Platform{}) {
		return nil, dispatcherr.Unauthorized("create_location")
	}

	var loc domain.Location
	switch {
	case coord != nil:
		loc = domain.NewCoordinateLocation(uuid.New(), coord.Coordinates, coord.Description)
	case place != nil:
		coords, description, err := s.provider.ResolvePlace(ctx, place.PlaceID, place.SessionToken)
		if err != nil {
			return nil, err
		}
		loc = domain.NewProviderLocation(uuid.New(), coords, description, place.PlaceID, place.SessionToken)
	default:
		return nil, dispatcherr.InvalidInput("location source required")
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	if err := tx.InsertLocation(ctx, loc); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &loc, nil
}

// FindLocation is a plain read by token.
func (s *Service) FindLocation(ctx context.Context, token uuid.UUID) (domain.Location, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Location{}, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	loc, err := tx.FetchLocation(ctx, token)
	if err != nil {
		if err == store.ErrNotFound {
			return domain.Location{}, dispatcherr.InvalidInput("location not found")
		}
		return domain.Location{}, dispatcherr.Internal(err)
	}
	return loc, nil
}

// CreateRoute loads both endpoint locations, fetches opaque directions plus
// an authoritative distance from the GeoProvider, and persists the Route.
func (s *Service) CreateRoute(ctx context.Context, user domain.User, originToken, destinationToken uuid.UUID) (*domain.Route, error) {
	if !s.policy.IsAllowed(user, "create_route", authz.Platform{}) {
		return nil, dispatcherr.Unauthorized("create_route")
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	origin, err := tx.FetchLocation(ctx, originToken)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("origin not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	destination, err := tx.FetchLocation(ctx, destinationToken)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("destination not found")
		}
		return nil, dispatcherr.Internal(err)
	}

	directions, distanceM, err := s.provider.Directions(ctx, origin.Coordinates, destination.Coordinates)
	if err != nil {
		return nil, err
	}

	route := domain.Route{
		Token:       uuid.New(),
		Origin:      origin,
		Destination: destination,
		Directions:  directions,
		DistanceM:   distanceM,
	}
	if err := tx.InsertRoute(ctx, route); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &route, nil
}

// FindRoute is a plain read by token.
func (s *Service) FindRoute(ctx context.Context, token uuid.UUID) (domain.Route, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Route{}, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	route, err := tx.FetchRoute(ctx, token)
	if err != nil {
		if err == store.ErrNotFound {
			return domain.Route{}, dispatcherr.InvalidInput("route not found")
		}
		return domain.Route{}, dispatcherr.Internal(err)
	}
	return route, nil
}
