// Package store defines the transactional persistence boundary the
// dispatcher runs against: per-entity locked fetch/update/insert, the
// geospatial candidate query, and the side tables that back driver rates,
// locations, priorities, and trip rejections. internal/store/memory and
// internal/store/postgres provide concrete implementations; the dispatcher
// never imports either directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"caballus/internal/domain"
)

// ErrNotFound is returned by every fetch method when the requested row does
// not exist.
var ErrNotFound = errors.New("store: not found")

// DriverRate is the driver_rates side table. Both fields are nil until
// update_driver_rate is called, matching create_driver's nulls-row insert.
type DriverRate struct {
	MinFare *float64
	Rate    *float64
}

// Fresh reports whether both rate fields are populated.
func (r DriverRate) Fresh() bool {
	return r.MinFare != nil && r.Rate != nil
}

// DriverLocation is the driver_locations side table, a TTL-expiring
// heartbeat. The zero value (zero Expiry) means the driver has never
// reported a location.
type DriverLocation struct {
	Point  domain.Coordinates
	Expiry time.Time
}

// FreshAt reports whether the location heartbeat has not expired at now.
func (l DriverLocation) FreshAt(now time.Time) bool {
	return !l.Expiry.IsZero() && now.Before(l.Expiry)
}

// Candidate is one row of the driver-search shortlist/recheck: a driver
// eligible for a trip, along with the inputs used to rank and price them.
type Candidate struct {
	DriverID  uuid.UUID
	DistanceM float64
	Fare      float64
	Priority  float64
}

// Store opens transactions. A single transaction backs one dispatcher
// operation end to end.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a single transactional unit of work. Every fetch-for-update call
// takes an exclusive lock on the row held until Commit or Rollback; callers
// must acquire locks in the canonical order trip -> driver -> driver_rates
// -> trip_rejections -> driver_priorities -> passenger to avoid deadlock.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	InsertLocation(ctx context.Context, loc domain.Location) error
	FetchLocation(ctx context.Context, token uuid.UUID) (domain.Location, error)

	InsertRoute(ctx context.Context, route domain.Route) error
	FetchRoute(ctx context.Context, token uuid.UUID) (domain.Route, error)

	InsertQuote(ctx context.Context, quote domain.Quote) error
	FetchQuote(ctx context.Context, token uuid.UUID) (domain.Quote, error)

	InsertTrip(ctx context.Context, trip domain.Trip) error
	// FetchTrip reads without locking, used for the unlocked pre-checks in
	// request_driver before the search shortlist is built.
	FetchTrip(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	FetchTripForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error)
	UpdateTrip(ctx context.Context, trip domain.Trip) error

	InsertDriver(ctx context.Context, driver domain.Driver) error
	FetchDriverForUpdate(ctx context.Context, id uuid.UUID) (domain.Driver, error)
	UpdateDriver(ctx context.Context, driver domain.Driver) error

	InsertDriverRate(ctx context.Context, driverID uuid.UUID, rate DriverRate) error
	FetchDriverRateForUpdate(ctx context.Context, driverID uuid.UUID) (DriverRate, error)
	UpdateDriverRate(ctx context.Context, driverID uuid.UUID, rate DriverRate) error

	InsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc DriverLocation) error
	FetchDriverLocation(ctx context.Context, driverID uuid.UUID) (DriverLocation, error)
	UpsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc DriverLocation) error

	InsertDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error
	FetchDriverPriorityForUpdate(ctx context.Context, driverID uuid.UUID) (float64, error)
	UpdateDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error

	HasRejection(ctx context.Context, tripID, driverID uuid.UUID) (bool, error)
	InsertRejection(ctx context.Context, tripID, driverID uuid.UUID) error

	InsertPassenger(ctx context.Context, passenger domain.Passenger) error
	FetchPassengerForUpdate(ctx context.Context, id uuid.UUID) (domain.Passenger, error)
	UpdatePassenger(ctx context.Context, passenger domain.Passenger) error

	// SearchCandidates runs the unlocked driver-search shortlist: eligible
	// drivers within radiusM of origin whose fare — computed per §4.2 as
	// max(min_fare, rate*(dist(driver, origin) + routeDistanceM)) — does
	// not exceed maxFare, and who have not rejected excludeTripID, ordered
	// by priority ascending then distance ascending, ties broken by
	// driver id ascending.
	SearchCandidates(ctx context.Context, now time.Time, origin domain.Coordinates, radiusM, routeDistanceM, maxFare float64, excludeTripID uuid.UUID) ([]Candidate, error)
}

// ClampPriority enforces driver_priorities.priority into [0, 1], shared by
// every store implementation's priority writers.
func ClampPriority(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
