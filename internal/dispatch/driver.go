package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"caballus/internal/authz"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/store"
)

// locationHeartbeatTTL is how long a reported location remains fresh for
// search purposes.
const locationHeartbeatTTL = 60 * time.Second

// CreateDriver registers a new driver for the calling member: an Inactive
// Driver plus rates, location, and priority side rows, the location and
// rate rows starting null and the priority row starting at 0.
func (d *Dispatcher) CreateDriver(ctx context.Context, user domain.User) (*domain.Driver, error) {
	if !d.policy.IsAllowed(user, "create_driver", authz.Platform{}) {
		return nil, dispatcherr.Unauthorized("create_driver")
	}

	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	driver := *domain.NewDriver(user.ID)
	if err := tx.InsertDriver(ctx, driver); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.InsertDriverRate(ctx, driver.ID, store.DriverRate{}); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.InsertDriverLocation(ctx, driver.ID, store.DriverLocation{}); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.InsertDriverPriority(ctx, driver.ID, 0); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &driver, nil
}

// FindDriver is a read by id, gated by the "read" action; the
// start/stop/rate/location operations each authorize only their own action.
// There is no unlocked driver fetch in the store, so this opens a
// transaction purely to read and always rolls it back.
func (d *Dispatcher) FindDriver(ctx context.Context, user domain.User, driverID uuid.UUID) (*domain.Driver, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	driver, err := tx.FetchDriverForUpdate(ctx, driverID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("driver not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "read", driver) {
		return nil, dispatcherr.Unauthorized("read")
	}
	return &driver, nil
}

// StartDriver transitions Inactive -> Available.
func (d *Dispatcher) StartDriver(ctx context.Context, user domain.User, driverID uuid.UUID) (*domain.Driver, error) {
	return d.applyDriverTransition(ctx, user, driverID, "start", (*domain.Driver).Start)
}

// StopDriver transitions Available -> Inactive.
func (d *Dispatcher) StopDriver(ctx context.Context, user domain.User, driverID uuid.UUID) (*domain.Driver, error) {
	return d.applyDriverTransition(ctx, user, driverID, "stop", (*domain.Driver).Stop)
}

func (d *Dispatcher) applyDriverTransition(ctx context.Context, user domain.User, driverID uuid.UUID, action string, transition func(*domain.Driver) error) (*domain.Driver, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	driver, err := tx.FetchDriverForUpdate(ctx, driverID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("driver not found")
		}
		return nil, dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, action, driver) {
		return nil, dispatcherr.Unauthorized(action)
	}
	if err := transition(&driver); err != nil {
		return nil, dispatcherr.FromInvocation(err)
	}
	if err := tx.UpdateDriver(ctx, driver); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &driver, nil
}

// UpdateDriverLocation refreshes a driver's heartbeat with a 60-second
// expiry. Not guarded by a state transition: a driver may report location
// in any status.
func (d *Dispatcher) UpdateDriverLocation(ctx context.Context, user domain.User, driverID uuid.UUID, coords domain.Coordinates) error {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	driver, err := tx.FetchDriverForUpdate(ctx, driverID)
	if err != nil {
		if err == store.ErrNotFound {
			return dispatcherr.InvalidInput("driver not found")
		}
		return dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "update_location", driver) {
		return dispatcherr.Unauthorized("update_location")
	}

	if err := tx.UpsertDriverLocation(ctx, driverID, store.DriverLocation{
		Point:  coords,
		Expiry: d.now().Add(locationHeartbeatTTL),
	}); err != nil {
		return dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dispatcherr.Internal(err)
	}
	return nil
}

// UpdateDriverRate sets a driver's pricing parameters.
func (d *Dispatcher) UpdateDriverRate(ctx context.Context, user domain.User, driverID uuid.UUID, minFare, rate float64) error {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	driver, err := tx.FetchDriverForUpdate(ctx, driverID)
	if err != nil {
		if err == store.ErrNotFound {
			return dispatcherr.InvalidInput("driver not found")
		}
		return dispatcherr.Internal(err)
	}
	if !d.policy.IsAllowed(user, "update_rate", driver) {
		return dispatcherr.Unauthorized("update_rate")
	}

	if err := tx.UpdateDriverRate(ctx, driverID, store.DriverRate{MinFare: &minFare, Rate: &rate}); err != nil {
		return dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return dispatcherr.Internal(err)
	}
	return nil
}
