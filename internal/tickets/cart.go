// Package tickets is the event-ticket booking surface: buyers pick quantities
// per ticket type rather than individual seats.
package tickets

import (
	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

type Line struct {
	TicketType domain.TicketType `json:"ticket_type"`
	Quantity   int               `json:"quantity"`
}

type Cart struct {
	types map[int64]domain.TicketType
	order []int64
	qty   map[int64]int
}

func NewCart(event domain.Event) *Cart {
	c := &Cart{
		types: make(map[int64]domain.TicketType, len(event.TicketTypes)),
		qty:   make(map[int64]int),
	}
	for _, tt := range event.TicketTypes {
		c.types[tt.ID] = tt
		c.order = append(c.order, tt.ID)
	}
	return c
}

// Change moves a ticket type's quantity by delta, held within
// [0, availableQuantity].
func (c *Cart) Change(ticketTypeID int64, delta int) (int, error) {
	tt, ok := c.types[ticketTypeID]
	if !ok {
		return 0, errors.Wrapf(domain.ErrUnknownTicketType, "ticket type %d", ticketTypeID)
	}
	return c.set(tt, c.qty[ticketTypeID]+delta), nil
}

// Set is Change with an absolute quantity.
func (c *Cart) Set(ticketTypeID int64, quantity int) (int, error) {
	tt, ok := c.types[ticketTypeID]
	if !ok {
		return 0, errors.Wrapf(domain.ErrUnknownTicketType, "ticket type %d", ticketTypeID)
	}
	return c.set(tt, quantity), nil
}

func (c *Cart) set(tt domain.TicketType, q int) int {
	if q > tt.AvailableQuantity {
		q = tt.AvailableQuantity
	}
	if q <= 0 {
		delete(c.qty, tt.ID)
		return 0
	}
	c.qty[tt.ID] = q
	return q
}

func (c *Cart) TotalTickets() int {
	n := 0
	for _, q := range c.qty {
		n += q
	}
	return n
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for id, q := range c.qty {
		total = total.Add(c.types[id].Price.Mul(decimal.NewFromInt(int64(q))))
	}
	return total
}

// Lines lists the non-empty lines in the event's ticket type order.
func (c *Cart) Lines() []Line {
	var out []Line
	for _, id := range c.order {
		if q := c.qty[id]; q > 0 {
			out = append(out, Line{TicketType: c.types[id], Quantity: q})
		}
	}
	return out
}
