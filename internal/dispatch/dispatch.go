// Package dispatch implements the trip dispatcher: the atomic transactions
// that move Trip and Driver through request_driver, release_driver,
// accept_trip, reject_trip, and cancel_trip, plus the driver search that
// backs request_driver. Every operation authorizes first, then runs inside
// a single store transaction with locks acquired in the canonical order
// trip -> driver -> driver_rates -> trip_rejections -> driver_priorities ->
// passenger.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"caballus/internal/authz"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/fare"
	"caballus/internal/store"
)

// priorityStep is how far a single voluntary release or rejection moves
// driver_priorities.priority. Both the spec drafts describe a "+1"/"-1"
// step clamped into [0, 1]; at that magnitude the step fully saturates the
// range, so priority behaves as a binary best/worst signal that the next
// event can immediately reverse. Pinned here since the spec's adjustment
// magnitude is otherwise in (0, 1].
const priorityStep = 1.0

// Clock is the narrow time dependency the dispatcher needs.
type Clock func() time.Time

// Dispatcher implements create_trip, request_driver, release_driver,
// accept_trip, reject_trip, and cancel_trip.
type Dispatcher struct {
	store  store.Store
	policy *authz.Policy
	now    Clock
}

// NewDispatcher constructs a Dispatcher. A nil clock defaults to time.Now.
func NewDispatcher(s store.Store, policy *authz.Policy, clock Clock) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{store: s, policy: policy, now: clock}
}

// FindTrip is a plain unlocked read by id, gated by the "read" action; the
// other trip operations each authorize only their own action.
func (d *Dispatcher) FindTrip(ctx context.Context, user domain.User, tripID uuid.UUID) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTrip(ctx, tripID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "read", trip) {
		return nil, dispatcherr.Unauthorized("read")
	}
	return &trip, nil
}

// CreateTrip commits a passenger to a quote, producing a Searching trip.
func (d *Dispatcher) CreateTrip(ctx context.Context, user domain.User, quoteToken uuid.UUID) (*domain.Trip, error) {
	if !d.policy.IsAllowed(user, "create_trip", authz.Platform{}) {
		return nil, dispatcherr.Unauthorized("create_trip")
	}

	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	q, err := tx.FetchQuote(ctx, quoteToken)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("quote not found")
		}
		return nil, dispatcherr.Internal(err)
	}

	trip := *domain.NewTrip(uuid.New(), user.ID, q.Route, q.MaxFare)

	// The authorization table gates create_trip on a "passenger" role but
	// names no separate create_passenger endpoint; a passenger record is
	// lazily created on its owner's first trip rather than requiring a
	// prior registration call the HTTP surface never exposes.
	passenger, err := tx.FetchPassengerForUpdate(ctx, user.ID)
	if err == store.ErrNotFound {
		passenger = *domain.NewPassenger(user.ID)
		if err := tx.InsertPassenger(ctx, passenger); err != nil {
			return nil, dispatcherr.Internal(err)
		}
	} else if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := passenger.Activate(trip.ID); err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}

	if err := tx.InsertTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.UpdatePassenger(ctx, passenger); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// RequestDriver runs the dispatcher's driver search against a Searching
// trip, revalidates each candidate under lock in order, and offers the
// trip to the first one that still qualifies. A nil Trip with a nil error
// means no candidate succeeded; the caller may retry later.
func (d *Dispatcher) RequestDriver(ctx context.Context, user domain.User, tripID uuid.UUID) (*domain.Trip, error) {
	readTx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	trip, err := readTx.FetchTrip(ctx, tripID)
	readTx.Rollback(ctx)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}

	if !d.policy.IsAllowed(user, "request_driver", trip) {
		return nil, dispatcherr.Unauthorized("request_driver")
	}
	if trip.Status.Kind != domain.TripSearching {
		return nil, dispatcherr.FromInvocation(domain.ErrInvalidInvocation)
	}

	candidates, err := d.shortlist(ctx, trip)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}

	for _, c := range candidates {
		assigned, err := d.tryAssignCandidate(ctx, tripID, c)
		if err != nil {
			return nil, err
		}
		if assigned != nil {
			return assigned, nil
		}
	}
	return nil, nil
}

// tryAssignCandidate opens the phase-2 locked re-check for a single
// candidate. A nil, nil return means the candidate no longer qualifies and
// the caller should continue to the next one.
func (d *Dispatcher) tryAssignCandidate(ctx context.Context, tripID uuid.UUID, c store.Candidate) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTripForUpdate(ctx, tripID)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if trip.Status.Kind != domain.TripSearching {
		return nil, nil
	}

	driver, err := tx.FetchDriverForUpdate(ctx, c.DriverID)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	rate, err := tx.FetchDriverRateForUpdate(ctx, c.DriverID)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	rejected, err := tx.HasRejection(ctx, tripID, c.DriverID)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}

	if !driver.IsAvailable() || rejected || !rate.Fresh() {
		return nil, nil
	}
	loc, err := tx.FetchDriverLocation(ctx, c.DriverID)
	if err != nil || !loc.FreshAt(d.now()) {
		return nil, nil
	}

	driverFare := fare.DriverFare(*rate.MinFare, *rate.Rate, loc.Point, trip.Route.Origin.Coordinates, trip.Route.DistanceM)
	if driverFare > trip.MaxFare {
		return nil, nil
	}

	if err := driver.Request(trip.ID); err != nil {
		return nil, nil
	}
	if err := trip.RequestDriver(d.now(), driver.ID, driverFare); err != nil {
		return nil, nil
	}

	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.UpdateTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// ReleaseDriver withdraws a still-pending offer from driverID, returning
// the trip to Searching and the driver to Available.
func (d *Dispatcher) ReleaseDriver(ctx context.Context, user domain.User, tripID, driverID uuid.UUID) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTripForUpdate(ctx, tripID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "release_driver", trip) {
		return nil, dispatcherr.Unauthorized("release_driver")
	}

	released, err := trip.ReleaseDriver()
	if err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}
	if released != driverID {
		return nil, dispatcherr.FromInvocation(domain.ErrInvalidInvocation)
	}

	if err := d.freeDriver(ctx, tx, driverID, priorityStep); err != nil {
		return nil, err
	}
	if err := tx.UpdateTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// AcceptTrip commits the offered driver to the trip.
func (d *Dispatcher) AcceptTrip(ctx context.Context, user domain.User, tripID uuid.UUID) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTripForUpdate(ctx, tripID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "accept", trip) {
		return nil, dispatcherr.Unauthorized("accept")
	}

	assigned, err := trip.AssignDriver(d.now())
	if err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}

	driver, err := tx.FetchDriverForUpdate(ctx, assigned)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := driver.Assign(); err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}

	if err := tx.UpdateTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// RejectTrip declines the offer: the trip returns to Searching, the driver
// is freed and barred from being offered this trip again, and its priority
// moves toward 0.
func (d *Dispatcher) RejectTrip(ctx context.Context, user domain.User, tripID uuid.UUID) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTripForUpdate(ctx, tripID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "reject", trip) {
		return nil, dispatcherr.Unauthorized("reject")
	}

	released, err := trip.ReleaseDriver()
	if err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}

	if err := d.freeDriver(ctx, tx, released, -priorityStep); err != nil {
		return nil, err
	}
	if err := tx.InsertRejection(ctx, tripID, released); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.UpdateTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// CancelTrip terminates the trip, allocating the cancellation penalty and
// freeing the driver (if any) and the passenger.
func (d *Dispatcher) CancelTrip(ctx context.Context, user domain.User, tripID uuid.UUID) (*domain.Trip, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	trip, err := tx.FetchTripForUpdate(ctx, tripID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("trip not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "cancel", trip) {
		return nil, dispatcherr.Unauthorized("cancel")
	}

	isPassenger := user.ID == trip.PassengerID
	_, freedDriverID, err := trip.Cancel(d.now(), isPassenger)
	if err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}
	if err := tx.UpdateTrip(ctx, trip); err != nil {
		return nil, dispatcherr.Internal(err)
	}

	if freedDriverID != nil {
		driver, err := tx.FetchDriverForUpdate(ctx, *freedDriverID)
		if err != nil {
			return nil, dispatcherr.Internal(err)
		}
		driver.Free()
		if err := tx.UpdateDriver(ctx, driver); err != nil {
			return nil, dispatcherr.Internal(err)
		}
	}

	passenger, err := tx.FetchPassengerForUpdate(ctx, trip.PassengerID)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := passenger.Deactivate(); err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}
	if err := tx.UpdatePassenger(ctx, passenger); err != nil {
		return nil, dispatcherr.Internal(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &trip, nil
}

// freeDriver locks driverID, frees it, and bumps its priority by delta
// (clamped into [0, 1]).
func (d *Dispatcher) freeDriver(ctx context.Context, tx store.Tx, driverID uuid.UUID, delta float64) error {
	driver, err := tx.FetchDriverForUpdate(ctx, driverID)
	if err != nil {
		return dispatcherr.Internal(err)
	}
	driver.Free()
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return dispatcherr.Internal(err)
	}

	priority, err := tx.FetchDriverPriorityForUpdate(ctx, driverID)
	if err != nil {
		return dispatcherr.Internal(err)
	}
	if err := tx.UpdateDriverPriority(ctx, driverID, store.ClampPriority(priority+delta)); err != nil {
		return dispatcherr.Internal(err)
	}
	return nil
}
