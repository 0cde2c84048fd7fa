package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"caballus/internal/api/middleware"
	"caballus/internal/dispatcherr"
	"caballus/internal/quote"
)

// QuoteHandler serves /quotes.
type QuoteHandler struct {
	svc *quote.Service
}

// NewQuoteHandler constructs a QuoteHandler.
func NewQuoteHandler(svc *quote.Service) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

type createQuoteRequest struct {
	RouteToken uuid.UUID `json:"route_token"`
}

// CreateQuote handles POST /quotes. A quote that comes back absent (no
// eligible driver supply near the route origin) is reported as 404 per
// spec §6, distinct from the 400 an unknown route token gets.
func (h *QuoteHandler) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req createQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed request body"))
		return
	}

	q, err := h.svc.CreateQuote(r.Context(), req.RouteToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if q == nil {
		middleware.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "no supply"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, q)
}

// FindQuote handles GET /quotes/:token.
func (h *QuoteHandler) FindQuote(w http.ResponseWriter, r *http.Request) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		middleware.WriteError(w, dispatcherr.InvalidInput("malformed token"))
		return
	}
	q, err := h.svc.FindQuote(r.Context(), token)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, q)
}
