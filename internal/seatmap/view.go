package seatmap

import (
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/pricing"
)

type Snapshot struct {
	SelectedSeatIDs []int64         `json:"selected_seat_ids"`
	SelectedLabels  []string        `json:"selected_labels"`
	MaxSeats        int             `json:"max_seats"`
	UserPoints      int64           `json:"user_points"`
	ConversionRate  decimal.Decimal `json:"conversion_rate"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	MaxPointsUsable int64           `json:"max_points_usable"`
	PointsToRedeem  int64           `json:"points_to_redeem"`
	PointsDiscount  decimal.Decimal `json:"points_discount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	IsSubmitting    bool            `json:"is_submitting"`
}

// Snapshot prices the current selection against the rate as it is right now.
// Points that no longer fit under a lowered rate are pulled back to the cap.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	rate := e.rate()
	subtotal := e.subtotalLocked()
	limit := e.maxPointsLocked(rate)
	if e.points > limit {
		e.points = limit
	}
	discount := pricing.Discount(e.points, rate)

	labels := make([]string, 0, len(e.selected))
	for _, id := range e.selected {
		labels = append(labels, e.layout.Seats[e.index[id]].Label())
	}

	return Snapshot{
		SelectedSeatIDs: append([]int64{}, e.selected...),
		SelectedLabels:  labels,
		MaxSeats:        e.maxSeats,
		UserPoints:      e.userPoints,
		ConversionRate:  rate,
		Subtotal:        subtotal,
		MaxPointsUsable: limit,
		PointsToRedeem:  e.points,
		PointsDiscount:  discount,
		FinalPrice:      pricing.Final(subtotal, discount),
		IsSubmitting:    e.submitting,
	}
}
