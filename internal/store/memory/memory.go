// Package memory is an in-process, mutex-backed Store used by dispatcher
// unit and property tests. It reproduces the same row-locking semantics
// Postgres gives the production store (internal/store/postgres) by handing
// out a dedicated sync.Mutex per row id and buffering a transaction's
// writes until Commit. One sync.Mutex guards all of the entity maps; row
// locks have no timeout and are held until Commit or Rollback.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"caballus/internal/domain"
	"caballus/internal/fare"
	"caballus/internal/store"
)

type rejectionKey struct {
	tripID, driverID uuid.UUID
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	locations map[uuid.UUID]domain.Location
	routes    map[uuid.UUID]domain.Route
	quotes    map[uuid.UUID]domain.Quote

	trips      map[uuid.UUID]domain.Trip
	tripLocks  map[uuid.UUID]*sync.Mutex
	drivers    map[uuid.UUID]domain.Driver
	driverLocks map[uuid.UUID]*sync.Mutex

	driverRates     map[uuid.UUID]store.DriverRate
	driverRateLocks map[uuid.UUID]*sync.Mutex

	driverLocations map[uuid.UUID]store.DriverLocation

	driverPriorities     map[uuid.UUID]float64
	driverPriorityLocks  map[uuid.UUID]*sync.Mutex

	rejections map[rejectionKey]struct{}

	passengers     map[uuid.UUID]domain.Passenger
	passengerLocks map[uuid.UUID]*sync.Mutex
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{
		locations:           make(map[uuid.UUID]domain.Location),
		routes:              make(map[uuid.UUID]domain.Route),
		quotes:              make(map[uuid.UUID]domain.Quote),
		trips:               make(map[uuid.UUID]domain.Trip),
		tripLocks:           make(map[uuid.UUID]*sync.Mutex),
		drivers:             make(map[uuid.UUID]domain.Driver),
		driverLocks:         make(map[uuid.UUID]*sync.Mutex),
		driverRates:         make(map[uuid.UUID]store.DriverRate),
		driverRateLocks:     make(map[uuid.UUID]*sync.Mutex),
		driverLocations:     make(map[uuid.UUID]store.DriverLocation),
		driverPriorities:    make(map[uuid.UUID]float64),
		driverPriorityLocks: make(map[uuid.UUID]*sync.Mutex),
		rejections:          make(map[rejectionKey]struct{}),
		passengers:          make(map[uuid.UUID]domain.Passenger),
		passengerLocks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func lockFor(m map[uuid.UUID]*sync.Mutex, guard *sync.Mutex, id uuid.UUID) *sync.Mutex {
	guard.Lock()
	defer guard.Unlock()
	l, ok := m[id]
	if !ok {
		l = &sync.Mutex{}
		m[id] = l
	}
	return l
}

// BeginTx starts a buffered transaction. Row locks are acquired as the
// dispatcher calls FetchXForUpdate and released on Commit/Rollback; writes
// are held in the transaction and only applied to the store on Commit, so a
// rolled-back transaction leaves no trace.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	return &tx{s: s, held: nil, writes: newWriteSet()}, nil
}

type writeSet struct {
	trips            map[uuid.UUID]domain.Trip
	drivers          map[uuid.UUID]domain.Driver
	driverRates      map[uuid.UUID]store.DriverRate
	driverLocations  map[uuid.UUID]store.DriverLocation
	driverPriorities map[uuid.UUID]float64
	rejections       map[rejectionKey]struct{}
	passengers       map[uuid.UUID]domain.Passenger
	locations        map[uuid.UUID]domain.Location
	routes           map[uuid.UUID]domain.Route
	quotes           map[uuid.UUID]domain.Quote
}

func newWriteSet() *writeSet {
	return &writeSet{
		trips:            make(map[uuid.UUID]domain.Trip),
		drivers:          make(map[uuid.UUID]domain.Driver),
		driverRates:      make(map[uuid.UUID]store.DriverRate),
		driverLocations:  make(map[uuid.UUID]store.DriverLocation),
		driverPriorities: make(map[uuid.UUID]float64),
		rejections:       make(map[rejectionKey]struct{}),
		passengers:       make(map[uuid.UUID]domain.Passenger),
		locations:        make(map[uuid.UUID]domain.Location),
		routes:           make(map[uuid.UUID]domain.Route),
		quotes:           make(map[uuid.UUID]domain.Quote),
	}
}

type tx struct {
	s      *Store
	held   []*sync.Mutex
	writes *writeSet
	done   bool
}

func (t *tx) lockTrip(id uuid.UUID) {
	l := lockFor(t.s.tripLocks, &t.s.mu, id)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *tx) lockDriver(id uuid.UUID) {
	l := lockFor(t.s.driverLocks, &t.s.mu, id)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *tx) lockDriverRate(id uuid.UUID) {
	l := lockFor(t.s.driverRateLocks, &t.s.mu, id)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *tx) lockDriverPriority(id uuid.UUID) {
	l := lockFor(t.s.driverPriorityLocks, &t.s.mu, id)
	l.Lock()
	t.held = append(t.held, l)
}

func (t *tx) lockPassenger(id uuid.UUID) {
	l := lockFor(t.s.passengerLocks, &t.s.mu, id)
	l.Lock()
	t.held = append(t.held, l)
}

// Commit applies the buffered writes atomically under the store's map
// guard, then releases every row lock held by this transaction.
func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.s.mu.Lock()
	for id, v := range t.writes.trips {
		t.s.trips[id] = v
	}
	for id, v := range t.writes.drivers {
		t.s.drivers[id] = v
	}
	for id, v := range t.writes.driverRates {
		t.s.driverRates[id] = v
	}
	for id, v := range t.writes.driverLocations {
		t.s.driverLocations[id] = v
	}
	for id, v := range t.writes.driverPriorities {
		t.s.driverPriorities[id] = v
	}
	for k := range t.writes.rejections {
		t.s.rejections[k] = struct{}{}
	}
	for id, v := range t.writes.passengers {
		t.s.passengers[id] = v
	}
	for id, v := range t.writes.locations {
		t.s.locations[id] = v
	}
	for id, v := range t.writes.routes {
		t.s.routes[id] = v
	}
	for id, v := range t.writes.quotes {
		t.s.quotes[id] = v
	}
	t.s.mu.Unlock()
	return t.Rollback(ctx)
}

// Rollback discards any buffered writes and releases held locks. Safe to
// call after Commit.
func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i].Unlock()
	}
	t.held = nil
	t.done = true
	return nil
}

func (t *tx) InsertLocation(ctx context.Context, loc domain.Location) error {
	t.writes.locations[loc.Token] = loc
	return nil
}

func (t *tx) FetchLocation(ctx context.Context, token uuid.UUID) (domain.Location, error) {
	if v, ok := t.writes.locations[token]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.locations[token]
	if !ok {
		return domain.Location{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) InsertRoute(ctx context.Context, route domain.Route) error {
	t.writes.routes[route.Token] = route
	return nil
}

func (t *tx) FetchRoute(ctx context.Context, token uuid.UUID) (domain.Route, error) {
	if v, ok := t.writes.routes[token]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.routes[token]
	if !ok {
		return domain.Route{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) InsertQuote(ctx context.Context, quote domain.Quote) error {
	t.writes.quotes[quote.Token] = quote
	return nil
}

func (t *tx) FetchQuote(ctx context.Context, token uuid.UUID) (domain.Quote, error) {
	if v, ok := t.writes.quotes[token]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.quotes[token]
	if !ok {
		return domain.Quote{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) InsertTrip(ctx context.Context, trip domain.Trip) error {
	t.writes.trips[trip.ID] = trip
	return nil
}

func (t *tx) FetchTrip(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	if v, ok := t.writes.trips[id]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.trips[id]
	if !ok {
		return domain.Trip{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) FetchTripForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	t.lockTrip(id)
	return t.FetchTrip(ctx, id)
}

func (t *tx) UpdateTrip(ctx context.Context, trip domain.Trip) error {
	t.writes.trips[trip.ID] = trip
	return nil
}

func (t *tx) InsertDriver(ctx context.Context, driver domain.Driver) error {
	t.writes.drivers[driver.ID] = driver
	return nil
}

func (t *tx) fetchDriver(id uuid.UUID) (domain.Driver, error) {
	if v, ok := t.writes.drivers[id]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.drivers[id]
	if !ok {
		return domain.Driver{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) FetchDriverForUpdate(ctx context.Context, id uuid.UUID) (domain.Driver, error) {
	t.lockDriver(id)
	return t.fetchDriver(id)
}

func (t *tx) UpdateDriver(ctx context.Context, driver domain.Driver) error {
	t.writes.drivers[driver.ID] = driver
	return nil
}

func (t *tx) InsertDriverRate(ctx context.Context, driverID uuid.UUID, rate store.DriverRate) error {
	t.writes.driverRates[driverID] = rate
	return nil
}

func (t *tx) fetchDriverRate(driverID uuid.UUID) (store.DriverRate, error) {
	if v, ok := t.writes.driverRates[driverID]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.driverRates[driverID]
	if !ok {
		return store.DriverRate{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) FetchDriverRateForUpdate(ctx context.Context, driverID uuid.UUID) (store.DriverRate, error) {
	t.lockDriverRate(driverID)
	return t.fetchDriverRate(driverID)
}

func (t *tx) UpdateDriverRate(ctx context.Context, driverID uuid.UUID, rate store.DriverRate) error {
	t.writes.driverRates[driverID] = rate
	return nil
}

func (t *tx) InsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc store.DriverLocation) error {
	t.writes.driverLocations[driverID] = loc
	return nil
}

func (t *tx) FetchDriverLocation(ctx context.Context, driverID uuid.UUID) (store.DriverLocation, error) {
	if v, ok := t.writes.driverLocations[driverID]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.driverLocations[driverID]
	if !ok {
		return store.DriverLocation{}, store.ErrNotFound
	}
	return v, nil
}

// UpsertDriverLocation is not guarded by a row lock: a heartbeat may be
// refreshed in any driver status, so it never enters the canonical lock
// order.
func (t *tx) UpsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc store.DriverLocation) error {
	t.writes.driverLocations[driverID] = loc
	return nil
}

func (t *tx) InsertDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error {
	t.writes.driverPriorities[driverID] = store.ClampPriority(priority)
	return nil
}

func (t *tx) fetchDriverPriority(driverID uuid.UUID) (float64, error) {
	if v, ok := t.writes.driverPriorities[driverID]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.driverPriorities[driverID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) FetchDriverPriorityForUpdate(ctx context.Context, driverID uuid.UUID) (float64, error) {
	t.lockDriverPriority(driverID)
	return t.fetchDriverPriority(driverID)
}

func (t *tx) UpdateDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error {
	t.writes.driverPriorities[driverID] = store.ClampPriority(priority)
	return nil
}

func (t *tx) HasRejection(ctx context.Context, tripID, driverID uuid.UUID) (bool, error) {
	key := rejectionKey{tripID, driverID}
	if _, ok := t.writes.rejections[key]; ok {
		return true, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	_, ok := t.s.rejections[key]
	return ok, nil
}

func (t *tx) InsertRejection(ctx context.Context, tripID, driverID uuid.UUID) error {
	t.writes.rejections[rejectionKey{tripID, driverID}] = struct{}{}
	return nil
}

func (t *tx) InsertPassenger(ctx context.Context, passenger domain.Passenger) error {
	t.writes.passengers[passenger.ID] = passenger
	return nil
}

func (t *tx) fetchPassenger(id uuid.UUID) (domain.Passenger, error) {
	if v, ok := t.writes.passengers[id]; ok {
		return v, nil
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	v, ok := t.s.passengers[id]
	if !ok {
		return domain.Passenger{}, store.ErrNotFound
	}
	return v, nil
}

func (t *tx) FetchPassengerForUpdate(ctx context.Context, id uuid.UUID) (domain.Passenger, error) {
	t.lockPassenger(id)
	return t.fetchPassenger(id)
}

func (t *tx) UpdatePassenger(ctx context.Context, passenger domain.Passenger) error {
	t.writes.passengers[passenger.ID] = passenger
	return nil
}

// SearchCandidates scans every driver. It is intentionally unlocked and
// racy, a phase-1 shortlist only: its result is just a bound on iteration
// for the locked phase-2 re-check, never trusted on its own.
func (t *tx) SearchCandidates(ctx context.Context, now time.Time, origin domain.Coordinates, radiusM, routeDistanceM, maxFare float64, excludeTripID uuid.UUID) ([]store.Candidate, error) {
	t.s.mu.Lock()
	type row struct {
		driver   domain.Driver
		rate     store.DriverRate
		location store.DriverLocation
		priority float64
	}
	rows := make([]row, 0, len(t.s.drivers))
	for id, d := range t.s.drivers {
		rows = append(rows, row{
			driver:   d,
			rate:     t.s.driverRates[id],
			location: t.s.driverLocations[id],
			priority: t.s.driverPriorities[id],
		})
	}
	rejections := t.s.rejections
	t.s.mu.Unlock()

	var candidates []store.Candidate
	for _, r := range rows {
		if r.driver.Status.Kind != domain.DriverAvailable {
			continue
		}
		if !r.rate.Fresh() {
			continue
		}
		if !r.location.FreshAt(now) {
			continue
		}
		if _, rejected := rejections[rejectionKey{excludeTripID, r.driver.ID}]; rejected {
			continue
		}
		dist := domain.HaversineMeters(r.location.Point, origin)
		if dist > radiusM {
			continue
		}
		driverFare := fare.Fare(*r.rate.MinFare, *r.rate.Rate, dist+routeDistanceM)
		if driverFare > maxFare {
			continue
		}
		candidates = append(candidates, store.Candidate{
			DriverID:  r.driver.ID,
			DistanceM: dist,
			Fare:      driverFare,
			Priority:  r.priority,
		})
	}

	sortCandidates(candidates)
	return candidates, nil
}

// sortCandidates orders by priority ascending, then distance ascending,
// ties broken by driver id ascending for determinism.
func sortCandidates(candidates []store.Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.DistanceM != b.DistanceM {
			return a.DistanceM < b.DistanceM
		}
		return a.DriverID.String() < b.DriverID.String()
	})
}
