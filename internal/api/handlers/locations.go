// Package handlers translates HTTP requests into calls against the
// dispatcher's services and their results back into the JSON wire forms of
// spec §6. Handlers contain no business logic; every decision belongs to
// internal/location, internal/quote, internal/dispatch, or internal/authz.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caballus/internal/api/middleware"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
	"caballus/internal/location"
)

// LocationHandler serves /locations and /routes.
type LocationHandler struct {
	svc *location.Service
}

// NewLocationHandler constructs a LocationHandler.
func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{svc: svc}
}

// createLocationRequest is the POST /locations body: exactly one of the two
// source shapes should be populated, discriminated by Type.
type createLocationRequest struct {
	Source struct {
		Type         string  `json:"type"`
		Lat          float64 `json:"lat"`
		Lng          float64 `json:"lng"`
		Description  string  `json:"description"`
		PlaceID      string  `json:"place_id"`
		SessionToken string  `json:"session_token"`
	} `json:"source"`
}

// CreateLocation handles POST /locations.
func (h *LocationHandler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}

	user := middleware.UserFromContext(r.Context())

	var coord *location.CoordinateSource
	var place *location.PlaceSource
	switch req.Source.Type {
	case "coordinates":
		coord = &location.CoordinateSource{
			Coordinates: domain.Coordinates{Lat: req.Source.Lat, Lng: req.Source.Lng},
			Description: req.Source.Description,
		}
	case "google_places":
		place = &location.PlaceSource{PlaceID: req.Source.PlaceID, SessionToken: req.Source.SessionToken}
	default:
		middleware.WriteError(w, dispatcherr.InvalidInput("source.type must be coordinates or google_places"))
		return
	}

	loc, err := h.svc.CreateLocation(r.Context(), user, coord, place)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loc)
}

// FindLocation handles GET /locations/:token.
func (h *LocationHandler) FindLocation(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed token"))
		return
	}
	loc, err := h.svc.FindLocation(r.Context(), token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, loc)
}

// createRouteRequest is the POST /routes body.
type createRouteRequest struct {
	OriginID      uuid.UUID `json:"origin_id"`
	DestinationID uuid.UUID `json:"destination_id"`
}

// CreateRoute handles POST /routes.
func (h *LocationHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	route, err := h.svc.CreateRoute(r.Context(), user, req.OriginID, req.DestinationID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, route)
}

// FindRoute handles GET /routes/:token.
func (h *LocationHandler) FindRoute(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed token"))
		return
	}
	route, err := h.svc.FindRoute(r.Context(), token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, route)
}
