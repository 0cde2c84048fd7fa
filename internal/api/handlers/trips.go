package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caballus/internal/api/middleware"
	"caballus/internal/dispatch"
	"caballus/internal/dispatcherr"
	"caballus/internal/quote"
)

// TripHandler serves /trips and its /driver/* sub-resources.
type TripHandler struct {
	dispatcher *dispatch.Dispatcher
	quotes     *quote.Service
}

// NewTripHandler constructs a TripHandler.
func NewTripHandler(dispatcher *dispatch.Dispatcher, quotes *quote.Service) *TripHandler {
	return &TripHandler{dispatcher: dispatcher, quotes: quotes}
}

func tripID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

type createTripRequest struct {
	QuoteToken uuid.UUID `json:"quote_token"`
}

// CreateTrip handles POST /trips.
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.CreateTrip(r.Context(), user, req.QuoteToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

// GetTrip handles GET /trips/:id through the dispatcher's FindTrip, an
// unlocked fetch like request_driver's precheck, gated by the policy's
// "read" action.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	trip, err := h.dispatcher.FindTrip(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

// RequestDriver handles PATCH /trips/:id/driver/request. A 204 with no body
// means the search found no eligible candidate this round.
func (h *TripHandler) RequestDriver(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.RequestDriver(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if trip == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

type releaseDriverRequest struct {
	DriverID uuid.UUID `json:"driver_id"`
}

// ReleaseDriver handles PATCH /trips/:id/driver/release.
func (h *TripHandler) ReleaseDriver(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	var req releaseDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.ReleaseDriver(r.Context(), user, id, req.DriverID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

// AcceptTrip handles PATCH /trips/:id/driver/accept.
func (h *TripHandler) AcceptTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.AcceptTrip(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

// RejectTrip handles PATCH /trips/:id/driver/reject.
func (h *TripHandler) RejectTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.RejectTrip(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}

// CancelTrip handles PATCH /trips/:id/cancel.
func (h *TripHandler) CancelTrip(w http.ResponseWriter, r *http.Request) {
	id, err := tripID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed trip id"))
		return
	}
	user := middleware.UserFromContext(r.Context())

	trip, err := h.dispatcher.CancelTrip(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, trip)
}
