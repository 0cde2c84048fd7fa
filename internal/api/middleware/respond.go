package middleware

import (
	"encoding/json"
	"net/http"

	"caballus/internal/dispatcherr"
)

// errorEnvelope is the wire shape for a failed request: the stable numeric
// code from spec §7 plus a human-readable message, mirroring the
// code/message envelope the ubi middleware's respondError writes.
type errorEnvelope struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteError maps any error to an HTTP status and a JSON error envelope. A
// *dispatcherr.Error carries its own kind/status; anything else is treated
// as an unexpected internal failure.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := err.(*dispatcherr.Error)
	if !ok {
		de = dispatcherr.Internal(err)
	}
	WriteJSON(w, de.Kind.HTTPStatus(), errorEnvelope{
		Code:    de.Kind.Code(),
		Kind:    de.Kind.String(),
		Message: de.Error(),
	})
}

// WriteJSON writes v as a JSON response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
