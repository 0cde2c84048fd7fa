// Package postgres is the production Store: a pgx connection pool backing
// JSONB-blob-plus-denormalized-status rows with PostGIS geospatial columns
// (SRID 4326), paired with a Redis client that caches driver location
// heartbeats so the phase-1 shortlist (internal/dispatch/search.go) can
// narrow its candidates with a TTL-backed geo index before querying
// Postgres for the remaining fields. Modeled on shivamshaw23-Hintro's pgxpool-backed
// repository package and its ST_DWithin geospatial queries, with the
// connection-pool construction and health check lifted from its
// pkg/db/postgres.go.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"caballus/internal/domain"
	"caballus/internal/store"
)

// driverGeoKey is the Redis sorted-set key GEOADD/GEOSEARCH operate on for
// the driver heartbeat cache.
const driverGeoKey = "caballus:driver_locations"

// Store is the production store.Store backed by Postgres for durable rows
// and Redis for the driver location heartbeat cache.
type Store struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client
	heartbeatTTL time.Duration
}

// Config is the dial configuration for New.
type Config struct {
	DatabaseURL   string
	MaxConns      int32
	MinConns      int32
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HeartbeatTTL  time.Duration
}

// New dials Postgres and Redis and verifies both are reachable before
// returning, matching the teacher pack's fail-fast startup convention
// (NewPostgresPool's Ping-after-connect).
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping failed: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	ttl := cfg.HeartbeatTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &Store{pool: pool, rdb: rdb, heartbeatTTL: ttl}, nil
}

// Close releases the Postgres pool and the Redis client.
func (s *Store) Close() {
	s.pool.Close()
	_ = s.rdb.Close()
}

// BeginTx opens a Postgres transaction at the default READ COMMITTED
// isolation level; every dispatcher operation runs inside exactly one.
func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("postgres: begin tx: %w", err)
	}
	return &tx{pg: pgTx, rdb: s.rdb, heartbeatTTL: s.heartbeatTTL}, nil
}

type tx struct {
	pg           pgx.Tx
	rdb          *redis.Client
	heartbeatTTL time.Duration
	done         bool
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.pg.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.pg.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

func mapNotFound(err error) error {
	if err == pgx.ErrNoRows {
		return store.ErrNotFound
	}
	return err
}

// --- locations ---

func (t *tx) InsertLocation(ctx context.Context, loc domain.Location) error {
	blob, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `
		INSERT INTO locations (token, lat, lng, blob)
		VALUES ($1, $2, $3, $4)`,
		loc.Token, loc.Coordinates.Lat, loc.Coordinates.Lng, blob)
	return err
}

func (t *tx) FetchLocation(ctx context.Context, token uuid.UUID) (domain.Location, error) {
	var blob []byte
	err := t.pg.QueryRow(ctx, `SELECT blob FROM locations WHERE token = $1`, token).Scan(&blob)
	if err != nil {
		return domain.Location{}, mapNotFound(err)
	}
	var loc domain.Location
	return loc, json.Unmarshal(blob, &loc)
}

// --- routes ---

func (t *tx) InsertRoute(ctx context.Context, route domain.Route) error {
	blob, err := json.Marshal(route)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `
		INSERT INTO routes (token, distance_m, blob) VALUES ($1, $2, $3)`,
		route.Token, route.DistanceM, blob)
	return err
}

func (t *tx) FetchRoute(ctx context.Context, token uuid.UUID) (domain.Route, error) {
	var blob []byte
	err := t.pg.QueryRow(ctx, `SELECT blob FROM routes WHERE token = $1`, token).Scan(&blob)
	if err != nil {
		return domain.Route{}, mapNotFound(err)
	}
	var route domain.Route
	return route, json.Unmarshal(blob, &route)
}

// --- quotes ---

func (t *tx) InsertQuote(ctx context.Context, quote domain.Quote) error {
	blob, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `INSERT INTO quotes (token, max_fare, blob) VALUES ($1, $2, $3)`,
		quote.Token, quote.MaxFare, blob)
	return err
}

func (t *tx) FetchQuote(ctx context.Context, token uuid.UUID) (domain.Quote, error) {
	var blob []byte
	err := t.pg.QueryRow(ctx, `SELECT blob FROM quotes WHERE token = $1`, token).Scan(&blob)
	if err != nil {
		return domain.Quote{}, mapNotFound(err)
	}
	var q domain.Quote
	return q, json.Unmarshal(blob, &q)
}

// --- trips ---

func (t *tx) InsertTrip(ctx context.Context, trip domain.Trip) error {
	blob, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `
		INSERT INTO trips (id, status, passenger_id, blob)
		VALUES ($1, $2, $3, $4)`,
		trip.ID, trip.Status.Kind, trip.PassengerID, blob)
	return err
}

func (t *tx) fetchTrip(ctx context.Context, id uuid.UUID, forUpdate bool) (domain.Trip, error) {
	query := `SELECT blob FROM trips WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var blob []byte
	err := t.pg.QueryRow(ctx, query, id).Scan(&blob)
	if err != nil {
		return domain.Trip{}, mapNotFound(err)
	}
	var trip domain.Trip
	return trip, json.Unmarshal(blob, &trip)
}

func (t *tx) FetchTrip(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return t.fetchTrip(ctx, id, false)
}

func (t *tx) FetchTripForUpdate(ctx context.Context, id uuid.UUID) (domain.Trip, error) {
	return t.fetchTrip(ctx, id, true)
}

func (t *tx) UpdateTrip(ctx context.Context, trip domain.Trip) error {
	blob, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `
		UPDATE trips SET status = $2, blob = $3 WHERE id = $1`,
		trip.ID, trip.Status.Kind, blob)
	return err
}

// --- drivers ---

func (t *tx) InsertDriver(ctx context.Context, driver domain.Driver) error {
	blob, err := json.Marshal(driver)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `INSERT INTO drivers (id, status, blob) VALUES ($1, $2, $3)`,
		driver.ID, driver.Status.Kind, blob)
	return err
}

func (t *tx) FetchDriverForUpdate(ctx context.Context, id uuid.UUID) (domain.Driver, error) {
	var blob []byte
	err := t.pg.QueryRow(ctx, `SELECT blob FROM drivers WHERE id = $1 FOR UPDATE`, id).Scan(&blob)
	if err != nil {
		return domain.Driver{}, mapNotFound(err)
	}
	var driver domain.Driver
	return driver, json.Unmarshal(blob, &driver)
}

func (t *tx) UpdateDriver(ctx context.Context, driver domain.Driver) error {
	blob, err := json.Marshal(driver)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `UPDATE drivers SET status = $2, blob = $3 WHERE id = $1`,
		driver.ID, driver.Status.Kind, blob)
	return err
}

// --- driver_rates ---

func (t *tx) InsertDriverRate(ctx context.Context, driverID uuid.UUID, rate store.DriverRate) error {
	_, err := t.pg.Exec(ctx, `
		INSERT INTO driver_rates (driver_id, min_fare, rate) VALUES ($1, $2, $3)`,
		driverID, rate.MinFare, rate.Rate)
	return err
}

func (t *tx) FetchDriverRateForUpdate(ctx context.Context, driverID uuid.UUID) (store.DriverRate, error) {
	var rate store.DriverRate
	err := t.pg.QueryRow(ctx, `
		SELECT min_fare, rate FROM driver_rates WHERE driver_id = $1 FOR UPDATE`, driverID).
		Scan(&rate.MinFare, &rate.Rate)
	if err != nil {
		return store.DriverRate{}, mapNotFound(err)
	}
	return rate, nil
}

func (t *tx) UpdateDriverRate(ctx context.Context, driverID uuid.UUID, rate store.DriverRate) error {
	_, err := t.pg.Exec(ctx, `
		UPDATE driver_rates SET min_fare = $2, rate = $3 WHERE driver_id = $1`,
		driverID, rate.MinFare, rate.Rate)
	return err
}

// --- driver_locations (Postgres is the durable record; Redis is the hot
// cache the unlocked shortlist phase consults) ---

func (t *tx) InsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc store.DriverLocation) error {
	_, err := t.pg.Exec(ctx, `
		INSERT INTO driver_locations (driver_id, point, expiry)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4)`,
		driverID, loc.Point.Lng, loc.Point.Lat, nullTime(loc.Expiry))
	return err
}

func (t *tx) FetchDriverLocation(ctx context.Context, driverID uuid.UUID) (store.DriverLocation, error) {
	var lng, lat float64
	var expiry *time.Time
	err := t.pg.QueryRow(ctx, `
		SELECT ST_X(point), ST_Y(point), expiry FROM driver_locations WHERE driver_id = $1`,
		driverID).Scan(&lng, &lat, &expiry)
	if err != nil {
		return store.DriverLocation{}, mapNotFound(err)
	}
	loc := store.DriverLocation{Point: domain.Coordinates{Lat: lat, Lng: lng}}
	if expiry != nil {
		loc.Expiry = *expiry
	}
	return loc, nil
}

// UpsertDriverLocation is the heartbeat write path: it updates the
// authoritative Postgres row and refreshes the Redis GEOADD entry with a
// matching TTL key. The geo set has no per-member expiry, so GEOSEARCH can
// still return a driver whose heartbeat has lapsed; the shortlist query
// below drops such drivers by checking the TTL key.
func (t *tx) UpsertDriverLocation(ctx context.Context, driverID uuid.UUID, loc store.DriverLocation) error {
	_, err := t.pg.Exec(ctx, `
		INSERT INTO driver_locations (driver_id, point, expiry)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4)
		ON CONFLICT (driver_id) DO UPDATE
		SET point = EXCLUDED.point, expiry = EXCLUDED.expiry`,
		driverID, loc.Point.Lng, loc.Point.Lat, nullTime(loc.Expiry))
	if err != nil {
		return err
	}

	if t.rdb == nil {
		return nil
	}
	pipe := t.rdb.TxPipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      driverID.String(),
		Longitude: loc.Point.Lng,
		Latitude:  loc.Point.Lat,
	})
	ttl := t.heartbeatTTL
	if rem := time.Until(loc.Expiry); rem > 0 {
		ttl = rem
	}
	pipe.Set(ctx, heartbeatKey(driverID), "1", ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func heartbeatKey(driverID uuid.UUID) string {
	return "caballus:heartbeat:" + driverID.String()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- driver_priorities ---

func (t *tx) InsertDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error {
	_, err := t.pg.Exec(ctx, `
		INSERT INTO driver_priorities (driver_id, priority) VALUES ($1, $2)`,
		driverID, store.ClampPriority(priority))
	return err
}

func (t *tx) FetchDriverPriorityForUpdate(ctx context.Context, driverID uuid.UUID) (float64, error) {
	var p float64
	err := t.pg.QueryRow(ctx, `
		SELECT priority FROM driver_priorities WHERE driver_id = $1 FOR UPDATE`, driverID).Scan(&p)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return p, nil
}

func (t *tx) UpdateDriverPriority(ctx context.Context, driverID uuid.UUID, priority float64) error {
	_, err := t.pg.Exec(ctx, `
		UPDATE driver_priorities SET priority = $2 WHERE driver_id = $1`,
		driverID, store.ClampPriority(priority))
	return err
}

// --- trip_rejections ---

func (t *tx) HasRejection(ctx context.Context, tripID, driverID uuid.UUID) (bool, error) {
	var exists bool
	err := t.pg.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM trip_rejections WHERE trip_id = $1 AND driver_id = $2)`,
		tripID, driverID).Scan(&exists)
	return exists, err
}

func (t *tx) InsertRejection(ctx context.Context, tripID, driverID uuid.UUID) error {
	_, err := t.pg.Exec(ctx, `
		INSERT INTO trip_rejections (trip_id, driver_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, tripID, driverID)
	return err
}

// --- passengers ---

func (t *tx) InsertPassenger(ctx context.Context, passenger domain.Passenger) error {
	blob, err := json.Marshal(passenger)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `INSERT INTO passengers (id, status, blob) VALUES ($1, $2, $3)`,
		passenger.ID, passenger.Status.Kind, blob)
	return err
}

func (t *tx) FetchPassengerForUpdate(ctx context.Context, id uuid.UUID) (domain.Passenger, error) {
	var blob []byte
	err := t.pg.QueryRow(ctx, `SELECT blob FROM passengers WHERE id = $1 FOR UPDATE`, id).Scan(&blob)
	if err != nil {
		return domain.Passenger{}, mapNotFound(err)
	}
	var p domain.Passenger
	return p, json.Unmarshal(blob, &p)
}

func (t *tx) UpdatePassenger(ctx context.Context, passenger domain.Passenger) error {
	blob, err := json.Marshal(passenger)
	if err != nil {
		return err
	}
	_, err = t.pg.Exec(ctx, `UPDATE passengers SET status = $2, blob = $3 WHERE id = $1`,
		passenger.ID, passenger.Status.Kind, blob)
	return err
}

// SearchCandidates runs the unlocked phase-1 shortlist: drivers available,
// rated, fresh-located within radiusM of origin, whose fare does not
// exceed maxFare and who have not rejected excludeTripID, ordered by
// priority ascending then distance ascending, ties broken by driver id.
// When a Redis client is configured, the radius/freshness filter is served
// by GEOSEARCH against the heartbeat cache (see UpsertDriverLocation)
// instead of Postgres. The pure-SQL path below runs only when the Store has
// no Redis client; New always configures one and fails if Redis does not
// answer, and a Redis error during the search is returned, not retried
// over SQL.
func (t *tx) SearchCandidates(ctx context.Context, now time.Time, origin domain.Coordinates, radiusM, routeDistanceM, maxFare float64, excludeTripID uuid.UUID) ([]store.Candidate, error) {
	if t.rdb != nil {
		return t.searchCandidatesViaRedis(ctx, origin, radiusM, routeDistanceM, maxFare, excludeTripID)
	}
	return t.searchCandidatesViaSQL(ctx, now, origin, radiusM, routeDistanceM, maxFare, excludeTripID)
}

// searchCandidatesViaRedis consults the GEOADD-populated heartbeat cache for
// the radius and freshness filters, then asks Postgres for rate/priority/
// rejection data restricted to the candidate ids GEOSEARCH returned. This is
// the shape kcbsilva-TurboDriver's matching service uses: geo cache narrows
// the scan, the relational store supplies the fields the cache doesn't
// carry.
func (t *tx) searchCandidatesViaRedis(ctx context.Context, origin domain.Coordinates, radiusM, routeDistanceM, maxFare float64, excludeTripID uuid.UUID) ([]store.Candidate, error) {
	locs, err := t.rdb.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusM,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithDist: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: geosearch: %w", err)
	}
	if len(locs) == 0 {
		return nil, nil
	}

	distByID := make(map[uuid.UUID]float64, len(locs))
	ids := make([]uuid.UUID, 0, len(locs))
	for _, loc := range locs {
		id, err := uuid.Parse(loc.Name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
		distByID[id] = loc.Dist
	}
	if len(ids) == 0 {
		return nil, nil
	}

	// GEOSEARCH has no native per-member expiry, so a driver whose
	// heartbeat has lapsed can still sit in the sorted set; the paired TTL
	// key written alongside GEOADD in UpsertDriverLocation is the freshness
	// check.
	pipe := t.rdb.Pipeline()
	exists := make(map[uuid.UUID]*redis.IntCmd, len(ids))
	for _, id := range ids {
		exists[id] = pipe.Exists(ctx, heartbeatKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: heartbeat check: %w", err)
	}

	fresh := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if exists[id].Val() == 1 {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	rows, err := t.pg.Query(ctx, `
		SELECT d.id, r.min_fare, r.rate, p.priority
		FROM drivers d
		JOIN driver_rates r ON r.driver_id = d.id
		JOIN driver_priorities p ON p.driver_id = d.id
		WHERE d.status = 'available'
		  AND r.min_fare IS NOT NULL AND r.rate IS NOT NULL
		  AND d.id = ANY($1)
		  AND NOT EXISTS (
		        SELECT 1 FROM trip_rejections tr
		        WHERE tr.trip_id = $2 AND tr.driver_id = d.id
		      )`,
		fresh, excludeTripID)
	if err != nil {
		return nil, fmt.Errorf("postgres: search candidates (redis-backed): %w", err)
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var id uuid.UUID
		var minFare, rate, priority float64
		if err := rows.Scan(&id, &minFare, &rate, &priority); err != nil {
			return nil, err
		}
		distanceM := distByID[id]
		driverFare := math.Max(minFare, rate*(distanceM+routeDistanceM))
		if driverFare > maxFare {
			continue
		}
		out = append(out, store.Candidate{DriverID: id, DistanceM: distanceM, Fare: driverFare, Priority: priority})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].DistanceM != out[j].DistanceM {
			return out[i].DistanceM < out[j].DistanceM
		}
		return out[i].DriverID.String() < out[j].DriverID.String()
	})
	return out, nil
}

// searchCandidatesViaSQL is the pure-Postgres fallback: ST_DWithin against
// the geography cast of driver_locations.point does the radius filter the
// way FindNearbyCandidateTrips does in the pack's ride-pooling repository;
// the fare and eligibility predicates are evaluated in SQL so the shortlist
// only returns rows phase 2 is likely to confirm under lock.
func (t *tx) searchCandidatesViaSQL(ctx context.Context, now time.Time, origin domain.Coordinates, radiusM, routeDistanceM, maxFare float64, excludeTripID uuid.UUID) ([]store.Candidate, error) {
	rows, err := t.pg.Query(ctx, `
		SELECT d.id,
		       ST_Distance(
		           dl.point::geography,
		           ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		       ) AS distance_m,
		       GREATEST(r.min_fare, r.rate * (
		           ST_Distance(
		               dl.point::geography,
		               ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography
		           ) + $7
		       )) AS fare,
		       p.priority
		FROM drivers d
		JOIN driver_rates r ON r.driver_id = d.id
		JOIN driver_locations dl ON dl.driver_id = d.id
		JOIN driver_priorities p ON p.driver_id = d.id
		WHERE d.status = 'available'
		  AND r.min_fare IS NOT NULL AND r.rate IS NOT NULL
		  AND dl.expiry IS NOT NULL AND dl.expiry > $5
		  AND ST_DWithin(
		        dl.point::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		        $3
		      )
		  AND NOT EXISTS (
		        SELECT 1 FROM trip_rejections tr
		        WHERE tr.trip_id = $6 AND tr.driver_id = d.id
		      )
		  AND GREATEST(r.min_fare, r.rate * (
		        ST_Distance(dl.point::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) + $7
		      )) <= $4
		ORDER BY p.priority ASC, distance_m ASC, d.id ASC`,
		origin.Lng, origin.Lat, radiusM, maxFare, now, excludeTripID, routeDistanceM)
	if err != nil {
		return nil, fmt.Errorf("postgres: search candidates: %w", err)
	}
	defer rows.Close()

	var out []store.Candidate
	for rows.Next() {
		var c store.Candidate
		if err := rows.Scan(&c.DriverID, &c.DistanceM, &c.Fare, &c.Priority); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
