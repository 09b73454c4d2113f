package domain

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrEmptySelection     = errors.New("select at least one seat")
	ErrCommitInFlight     = errors.New("booking already in progress")
	ErrUnknownSeat        = errors.New("seat is not part of the layout")
	ErrUnknownTicketType  = errors.New("ticket type is not offered for this event")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrUnavailable        = errors.New("not available")
)

// BookingError is a failure reported by the remote booking backend. Message is
// the backend's own wording and is shown to the buyer unchanged.
type BookingError struct {
	Status  int
	Message string
}

func (e *BookingError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return e.Message
}
