// Package quote prices a route against the platform's current driver
// supply, anchoring the fare ceiling a subsequently created trip commits
// to.
package quote

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/fare"
	"caballus/internal/store"
)

// Clock is the narrow time dependency quote needs, satisfied by time.Now in
// production and stubbed in tests.
type Clock func() time.Time

// Service implements create_quote/find_quote.
type Service struct {
	store store.Store
	now   Clock
}

// NewService constructs a quote Service. A nil clock defaults to time.Now.
func NewService(s store.Store, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{store: s, now: clock}
}

// CreateQuote prices routeToken against the current driver supply. A nil
// Quote with a nil error means the candidate set was empty: the quote is
// absent, not an error, and the caller should report "no supply".
func (s *Service) CreateQuote(ctx context.Context, routeToken uuid.UUID) (*domain.Quote, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	route, err := tx.FetchRoute(ctx, routeToken)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, dispatcherr.InvalidInput("route not found")
		}
		return nil, dispatcherr.Internal(err)
	}

	candidates, err := tx.SearchCandidates(ctx, s.now(), route.Origin.Coordinates, domain.SearchRadiusM, route.DistanceM, math.MaxFloat64, uuid.Nil)
	if err != nil {
		return nil, dispatcherr.Internal(err)
	}

	fares := make([]float64, len(candidates))
	for i, c := range candidates {
		fares[i] = c.Fare
	}
	ceiling, ok := fare.QuoteCeiling(fares)
	if !ok {
		return nil, nil
	}

	q := domain.Quote{Token: uuid.New(), Route: route, MaxFare: ceiling}
	if err := tx.InsertQuote(ctx, q); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, dispatcherr.Internal(err)
	}
	return &q, nil
}

// FindQuote is a plain read by token.
func (s *Service) FindQuote(ctx context.Context, token uuid.UUID) (domain.Quote, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return domain.Quote{}, dispatcherr.Internal(err)
	}
	defer tx.Rollback(ctx)

	q, err := tx.FetchQuote(ctx, token)
	if err != nil {
		if err == store.ErrNotFound {
			return domain.Quote{}, dispatcherr.InvalidInput("quote not found")
		}
		return domain.Quote{}, dispatcherr.Internal(err)
	}
	return q, nil
}
