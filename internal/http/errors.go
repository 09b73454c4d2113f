package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain failures onto HTTP statuses. Remote booking failures
// keep the status the backend gave them.
func statusFor(err error) int {
	var be *domain.BookingError
	switch {
	case errors.As(err, &be):
		if be.Status >= 400 && be.Status < 600 {
			return be.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrEmptySelection), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnknownSeat), errors.Is(err, domain.ErrUnknownTicketType), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrCommitInFlight), errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrSerializationFailure), errors.Is(err, domain.ErrUnavailable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientPoints):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns what the buyer sees. Backend messages pass through
// unchanged; internal failures are not echoed.
func messageFor(err error, status int) string {
	var be *domain.BookingError
	if errors.As(err, &be) {
		return be.Error()
	}
	if status >= 500 {
		return http.StatusText(status)
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		loggerFrom(r.Context()).Error(r.Method+" "+r.URL.Path+": ", err)
	}
	writeJSON(w, status, errorResponse{Error: messageFor(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
