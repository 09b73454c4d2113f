package http

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/adapters/backend"
	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/pricing"
	"github.com/robertarktes/seatcheckout/internal/tickets"
	"github.com/robertarktes/seatcheckout/internal/venuestay"
)

var (
	errNoTickets        = errors.Mark(errors.New("select at least one ticket"), domain.ErrEmptySelection)
	errVenueUnavailable = errors.Mark(errors.New("venue is not available for the selected dates"), domain.ErrUnavailable)
)

type ticketItem struct {
	TicketTypeID int64 `json:"ticket_type_id" validate:"required,gt=0"`
	Quantity     int   `json:"quantity" validate:"gte=0"`
}

type ticketRequest struct {
	EventID        int64        `json:"event_id" validate:"required,gt=0"`
	Items          []ticketItem `json:"items" validate:"dive"`
	PointsToRedeem int64        `json:"points_to_redeem"`
}

type ticketQuoteResponse struct {
	EventID      int64          `json:"event_id"`
	Lines        []tickets.Line `json:"lines"`
	TotalTickets int            `json:"total_tickets"`
	Quote        pricing.Quote  `json:"quote"`
}

func (h *Handlers) quoteTickets(ctx context.Context, p Principal, req ticketRequest) (ticketQuoteResponse, error) {
	event, err := h.Backend.GetEvent(ctx, p.Token, req.EventID)
	if err != nil {
		return ticketQuoteResponse{}, err
	}
	cart := tickets.NewCart(event)
	for _, it := range req.Items {
		if _, err := cart.Set(it.TicketTypeID, it.Quantity); err != nil {
			return ticketQuoteResponse{}, err
		}
	}
	balance, err := h.Backend.GetPointsBalance(ctx, p.Token)
	if err != nil {
		return ticketQuoteResponse{}, err
	}
	quote, err := h.Config.Tickets.Quote(cart.Subtotal(), balance.Points, req.PointsToRedeem, h.Rates.Current())
	if err != nil {
		return ticketQuoteResponse{}, err
	}
	lines := cart.Lines()
	if lines == nil {
		lines = []tickets.Line{}
	}
	return ticketQuoteResponse{EventID: event.ID, Lines: lines, TotalTickets: cart.TotalTickets(), Quote: quote}, nil
}

func (h *Handlers) QuoteTickets(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.quoteTickets(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// BookTickets re-prices the cart server side, checks the buyer can cover
// redemption plus the platform fee, then books with points.
func (h *Handlers) BookTickets(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	surface := h.Config.Tickets
	var req ticketRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := context.WithoutCancel(r.Context())

	q, err := h.quoteTickets(ctx, p, req)
	if err == nil && q.TotalTickets == 0 {
		err = errNoTickets
	}
	if err == nil {
		err = surface.CheckBalance(q.Quote)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	eventID := req.EventID
	conf, err := h.Backend.CreateBookingWithPoints(ctx, p.Token, backend.WithPointsRequest{
		EventID:     &eventID,
		BookingDate: h.now().Format(venuestay.DateLayout),
		Quantity:    q.TotalTickets,
		TotalAmount: q.Quote.FinalPrice,
		PointsToUse: q.Quote.PointsToRedeem,
	})
	if err != nil {
		h.failed(ctx, p.UserID, surface.Name, err)
		writeError(w, r, err)
		return
	}

	receipt := domain.Receipt{
		ID:          uuid.New(),
		BookingID:   conf.BookingID,
		UserID:      p.UserID,
		EventID:     &eventID,
		Quantity:    q.TotalTickets,
		PointsUsed:  q.Quote.PointsToRedeem,
		TotalAmount: amountOr(conf.TotalAmount, q.Quote.FinalPrice),
		Surface:     surface.Name,
		ConfirmedAt: h.now().UTC(),
	}
	h.finalize(ctx, receipt)
	writeJSON(w, http.StatusCreated, confirmation(receipt))
}

type venueRequest struct {
	VenueID        int64  `json:"venue_id" validate:"required,gt=0"`
	StartDate      string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate        string `json:"end_date" validate:"required,datetime=2006-01-02"`
	PointsToRedeem int64  `json:"points_to_redeem"`
}

type venueQuoteResponse struct {
	VenueID       int64           `json:"venue_id"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Days          int             `json:"days"`
	DurationHours int             `json:"duration_hours"`
	PricePerDay   decimal.Decimal `json:"price_per_day"`
	Quote         pricing.Quote   `json:"quote"`
}

func (h *Handlers) quoteVenue(ctx context.Context, p Principal, req venueRequest) (venueQuoteResponse, error) {
	stay, err := venuestay.Parse(req.StartDate, req.EndDate)
	if err != nil {
		return venueQuoteResponse{}, err
	}
	venue, err := h.Backend.GetVenue(ctx, p.Token, req.VenueID)
	if err != nil {
		return venueQuoteResponse{}, err
	}
	balance, err := h.Backend.GetPointsBalance(ctx, p.Token)
	if err != nil {
		return venueQuoteResponse{}, err
	}
	quote, err := h.Config.Venue.Quote(stay.Subtotal(venue.PricePerDay), balance.Points, req.PointsToRedeem, h.Rates.Current())
	if err != nil {
		return venueQuoteResponse{}, err
	}
	return venueQuoteResponse{
		VenueID:       venue.ID,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		Days:          stay.Days(),
		DurationHours: stay.DurationHours(),
		PricePerDay:   venue.PricePerDay,
		Quote:         quote,
	}, nil
}

func (h *Handlers) QuoteVenue(w http.ResponseWriter, r *http.Request) {
	var req venueRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := h.quoteVenue(r.Context(), principal(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// BookVenue checks the fee balance first, then availability, then books.
func (h *Handlers) BookVenue(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	surface := h.Config.Venue
	var req venueRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := context.WithoutCancel(r.Context())

	q, err := h.quoteVenue(ctx, p, req)
	if err == nil {
		err = surface.CheckBalance(q.Quote)
	}
	if err == nil {
		var available bool
		available, err = h.Backend.CheckVenueAvailability(ctx, p.Token, req.VenueID, req.StartDate, req.EndDate)
		if err == nil && !available {
			err = errVenueUnavailable
		}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	venueID := req.VenueID
	conf, err := h.Backend.CreateBookingWithPoints(ctx, p.Token, backend.WithPointsRequest{
		VenueID:       &venueID,
		BookingDate:   req.StartDate,
		DurationHours: q.DurationHours,
		TotalAmount:   q.Quote.FinalPrice,
		PointsToUse:   q.Quote.PointsToRedeem,
	})
	if err != nil {
		h.failed(ctx, p.UserID, surface.Name, err)
		writeError(w, r, err)
		return
	}

	receipt := domain.Receipt{
		ID:          uuid.New(),
		BookingID:   conf.BookingID,
		UserID:      p.UserID,
		VenueID:     &venueID,
		Quantity:    1,
		PointsUsed:  q.Quote.PointsToRedeem,
		TotalAmount: amountOr(conf.TotalAmount, q.Quote.FinalPrice),
		Surface:     surface.Name,
		ConfirmedAt: h.now().UTC(),
	}
	h.finalize(ctx, receipt)
	writeJSON(w, http.StatusCreated, confirmation(receipt))
}

// amountOr prefers the backend's total and falls back to the local quote
// when the backend left it out.
func amountOr(backendTotal, quoted decimal.Decimal) decimal.Decimal {
	if backendTotal.IsZero() && !quoted.IsZero() {
		return quoted
	}
	return backendTotal
}
