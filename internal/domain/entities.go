package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TicketType struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"availableQuantity"`
}

type Event struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	TicketTypes []TicketType `json:"ticketTypes"`
}

type Venue struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	PricePerDay decimal.Decimal `json:"pricePerDay"`
}

type PointsBalance struct {
	Points          int64 `json:"points"`
	PointsPerDollar int64 `json:"pointsPerDollar"`
}

// BookingConfirmation is what the booking collaborator hands back once seats
// or tickets are confirmed.
type BookingConfirmation struct {
	BookingID   int64           `json:"bookingId"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Quantity    int             `json:"quantity"`
}

// Receipt is the local record of a confirmed checkout.
type Receipt struct {
	ID          uuid.UUID       `json:"id"`
	BookingID   int64           `json:"booking_id"`
	UserID      string          `json:"user_id"`
	EventID     *int64          `json:"event_id,omitempty"`
	VenueID     *int64          `json:"venue_id,omitempty"`
	SeatIDs     []int64         `json:"seat_ids,omitempty"`
	Quantity    int             `json:"quantity"`
	PointsUsed  int64           `json:"points_used"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Surface     string          `json:"surface"`
	ConfirmedAt time.Time       `json:"confirmed_at"`
}
