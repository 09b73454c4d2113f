package backend

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

// WithPointsRequest is the body of the points-paid booking endpoint used by
// the ticket and venue surfaces.
type WithPointsRequest struct {
	VenueID       *int64          `json:"venueId,omitempty"`
	EventID       *int64          `json:"eventId,omitempty"`
	BookingDate   string          `json:"bookingDate"`
	DurationHours int             `json:"durationHours,omitempty"`
	Quantity      int             `json:"quantity,omitempty"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PointsToUse   int64           `json:"pointsToUse"`
}

type bookingResponse struct {
	ID          int64           `json:"id"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Quantity    int             `json:"quantity"`
}

func (c *Client) CreateBookingWithPoints(ctx context.Context, token string, req WithPointsRequest) (domain.BookingConfirmation, error) {
	var b bookingResponse
	if err := c.do(ctx, "create_booking_with_points", http.MethodPost, "/api/bookings/with-points", token, req, &b); err != nil {
		return domain.BookingConfirmation{}, err
	}
	return domain.BookingConfirmation{BookingID: b.ID, TotalAmount: b.TotalAmount, Quantity: b.Quantity}, nil
}

// SeatBooker binds a buyer's credential and event so the seat map engine can
// commit without knowing about HTTP.
func (c *Client) SeatBooker(token string, eventID int64) func(ctx context.Context, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error) {
	return func(ctx context.Context, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error) {
		return c.BookSeats(ctx, token, eventID, seatIDs, pointsToUse)
	}
}
