// Package api wires together HTTP routes, middleware, and handlers. It is
// the composition root for the HTTP layer, translated from the teacher's
// Gin Router/Setup shape onto chi's mux.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"caballus/internal/api/handlers"
	"caballus/internal/api/middleware"
)

// Router holds references to all HTTP handlers and configures URL routing.
type Router struct {
	locationHandler *handlers.LocationHandler
	quoteHandler    *handlers.QuoteHandler
	tripHandler     *handlers.TripHandler
	driverHandler   *handlers.DriverHandler
}

// NewRouter creates a Router with all required handler dependencies.
func NewRouter(
	locationHandler *handlers.LocationHandler,
	quoteHandler *handlers.QuoteHandler,
	tripHandler *handlers.TripHandler,
	driverHandler *handlers.DriverHandler,
) *Router {
	return &Router{
		locationHandler: locationHandler,
		quoteHandler:    quoteHandler,
		tripHandler:     tripHandler,
		driverHandler:   driverHandler,
	}
}

// Setup builds the chi mux: ambient middleware first, then the health
// check, then every spec §6 route behind Auth.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-User-Id", "X-User-Roles", "X-Request-Id"},
		MaxAge:           300,
		AllowCredentials: false,
	}))

	// Load balancers and orchestrators call this before routing traffic —
	// no auth required.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth)

		r.Route("/locations", func(r chi.Router) {
			r.Post("/", rt.locationHandler.CreateLocation)
			r.Get("/{token}", rt.locationHandler.FindLocation)
		})
		r.Route("/routes", func(r chi.Router) {
			r.Post("/", rt.locationHandler.CreateRoute)
			r.Get("/{token}", rt.locationHandler.FindRoute)
		})
		r.Route("/quotes", func(r chi.Router) {
			r.Post("/", rt.quoteHandler.CreateQuote)
			r.Get("/{token}", rt.quoteHandler.FindQuote)
		})
		r.Route("/trips", func(r chi.Router) {
			r.Post("/", rt.tripHandler.CreateTrip)
			r.Get("/{id}", rt.tripHandler.GetTrip)
			r.Patch("/{id}/cancel", rt.tripHandler.CancelTrip)
			r.Patch("/{id}/driver/request", rt.tripHandler.RequestDriver)
			r.Patch("/{id}/driver/release", rt.tripHandler.ReleaseDriver)
			r.Patch("/{id}/driver/accept", rt.tripHandler.AcceptTrip)
			r.Patch("/{id}/driver/reject", rt.tripHandler.RejectTrip)
		})
		r.Route("/drivers", func(r chi.Router) {
			r.Post("/", rt.driverHandler.CreateDriver)
			r.Get("/{id}", rt.driverHandler.GetDriver)
			r.Patch("/{id}/start", rt.driverHandler.StartDriver)
			r.Patch("/{id}/stop", rt.driverHandler.StopDriver)
			r.Patch("/{id}/location", rt.driverHandler.UpdateLocation)
			r.Patch("/{id}/rate", rt.driverHandler.UpdateRate)
		})
	})

	return r
}
