package dispatch

import (
	"context"

	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/store"
)

// shortlist runs the unlocked phase-1 driver search: a racy, best-effort
// candidate list whose only purpose is to bound the phase-2 per-candidate
// re-check in RequestDriver. Folding it into its own short transaction (as
// opposed to the outer one) keeps no locks held across the scan.
func (d *Dispatcher) shortlist(ctx context.Context, trip domain.Trip) ([]store.Candidate, error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	return tx.SearchCandidates(ctx, d.now(), trip.Route.Origin.Coordinates, domain.SearchRadiusM, trip.Route.DistanceM, trip.MaxFare, trip.ID)
}
