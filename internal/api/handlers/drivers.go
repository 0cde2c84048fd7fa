package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caballus/internal/api/middleware"
	"caballus/internal/dispatch"
	"caballus/internal/dispatcherr"
	"caballus/internal/domain"
)

// DriverHandler serves /drivers.
type DriverHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewDriverHandler constructs a DriverHandler.
func NewDriverHandler(dispatcher *dispatch.Dispatcher) *DriverHandler {
	return &DriverHandler{dispatcher: dispatcher}
}

func driverID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

// CreateDriver handles POST /drivers.
func (h *DriverHandler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	driver, err := h.dispatcher.CreateDriver(r.Context(), user)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, driver)
}

// StartDriver handles PATCH /drivers/:id/start.
func (h *DriverHandler) StartDriver(w http.ResponseWriter, r *http.Request) {
	id, err := driverID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed driver id"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	driver, err := h.dispatcher.StartDriver(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, driver)
}

// StopDriver handles PATCH /drivers/:id/stop.
func (h *DriverHandler) StopDriver(w http.ResponseWriter, r *http.Request) {
	id, err := driverID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed driver id"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	driver, err := h.dispatcher.StopDriver(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, driver)
}

type updateLocationRequest struct {
	Coordinates domain.Coordinates `json:"coordinates"`
}

// UpdateLocation handles PATCH /drivers/:id/location.
func (h *DriverHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := driverID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed driver id"))
		return
	}
	var req updateLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	if err := h.dispatcher.UpdateDriverLocation(r.Context(), user, id, req.Coordinates); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateRateRequest struct {
	MinFare float64 `json:"min_fare"`
	Rate    float64 `json:"rate"`
}

// UpdateRate handles PATCH /drivers/:id/rate.
func (h *DriverHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	id, err := driverID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed driver id"))
		return
	}
	var req updateRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	if err := h.dispatcher.UpdateDriverRate(r.Context(), user, id, req.MinFare, req.Rate); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDriver handles GET /drivers/:id through the dispatcher's FindDriver,
// gated by the policy's "read" action on the driver.
func (h *DriverHandler) GetDriver(w http.ResponseWriter, r *http.Request) {
	id, err := driverID(r)
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed driver id"))
		return
	}
	user := middleware.UserFromContext(r.Context())
	driver, err := h.dispatcher.FindDriver(r.Context(), user, id)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, driver)
}
