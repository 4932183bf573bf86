package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/salescoach/advisor/internal/domain"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// statusForKind maps the domain error taxonomy onto HTTP status codes.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindPromptRejected, domain.KindTenantRequired:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindProviderRejected, domain.KindOutputSchema:
		return http.StatusBadGateway
	case domain.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// renderError writes a domain error as JSON. Server-side failures get a
// generic message so provider and configuration details never leak to
// clients; the full error still lands in the request log.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	kind := domain.KindOf(err)
	if kind == "" {
		kind = "internal"
	}
	status := statusForKind(kind)

	body := errorBody{RequestID: GetRequestID(r.Context())}
	body.Error.Kind = string(kind)
	if status >= http.StatusInternalServerError {
		body.Error.Message = "internal error"
	} else {
		var derr *domain.Error
		if errors.As(err, &derr) {
			body.Error.Message = derr.Message
		} else {
			body.Error.Message = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// renderJSON writes a success payload.
func renderJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
