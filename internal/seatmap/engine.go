// Package seatmap tracks one buyer's seat selection against a layout snapshot
// and prices it with points redemption.
package seatmap

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/pricing"
)

// DefaultMaxSeats caps a selection when Options.MaxSeats is unset.
const DefaultMaxSeats = 10

// Booker is the booking collaborator. It may block for as long as the remote
// call takes.
type Booker interface {
	BookSeats(ctx context.Context, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error)
}

// BookerFunc adapts a plain function to Booker.
type BookerFunc func(ctx context.Context, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error)

func (f BookerFunc) BookSeats(ctx context.Context, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error) {
	return f(ctx, seatIDs, pointsToUse)
}

// RateSource supplies points-per-currency-unit. The engine only reads it.
type RateSource interface {
	Current() decimal.Decimal
}

// FixedRate is a RateSource that never changes.
type FixedRate decimal.Decimal

func (r FixedRate) Current() decimal.Decimal { return decimal.Decimal(r) }

// Options configures an Engine. UserPoints is the balance read when the
// session opened.
type Options struct {
	MaxSeats   int
	UserPoints int64
	Rates      RateSource
	Booker     Booker
	Surface    pricing.Surface
}

// Engine holds one buyer's selection. All methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	layout     domain.SeatLayout
	index      map[int64]int
	selected   []int64
	points     int64
	userPoints int64
	maxSeats   int
	submitting bool
	rates      RateSource
	booker     Booker
	surface    pricing.Surface
}

// NewEngine copies layout, so later changes to the caller's value are not seen.
func NewEngine(layout domain.SeatLayout, opts Options) *Engine {
	if opts.MaxSeats <= 0 {
		opts.MaxSeats = DefaultMaxSeats
	}
	layout = layout.Clone()
	index := make(map[int64]int, len(layout.Seats))
	for i, s := range layout.Seats {
		index[s.ID] = i
	}
	return &Engine{
		layout:     layout,
		index:      index,
		userPoints: opts.UserPoints,
		maxSeats:   opts.MaxSeats,
		rates:      opts.Rates,
		booker:     opts.Booker,
		surface:    opts.Surface,
	}
}

// ToggleSeat adds or removes a seat. Clicks on seats that are not available,
// or that would exceed the seat cap, are ignored. Any change to the selection
// drops the redeemed points back to zero.
func (e *Engine) ToggleSeat(seatID int64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[seatID]
	if !ok {
		return false, errors.Wrapf(domain.ErrUnknownSeat, "seat %d", seatID)
	}
	if e.layout.Seats[i].Status != domain.SeatAvailable {
		return false, nil
	}

	if pos := e.position(seatID); pos >= 0 {
		e.selected = append(e.selected[:pos:pos], e.selected[pos+1:]...)
	} else {
		if len(e.selected) >= e.maxSeats {
			return false, nil
		}
		e.selected = append(e.selected, seatID)
	}
	e.points = 0
	return true, nil
}

// SetPointsToRedeem clamps value into [0, maxPointsUsable] and stores it.
func (e *Engine) SetPointsToRedeem(value int64) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.points = pricing.Clamp(value, e.maxPointsLocked(e.rate()))
	return e.points
}

// Cancel empties the selection.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

// ApplySeatStatus records a status change made elsewhere, e.g. another buyer
// booking the seat. The selection is left alone; a stale pick is reported by
// the backend at commit time.
func (e *Engine) ApplySeatStatus(seatID int64, status domain.SeatStatus) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	i, ok := e.index[seatID]
	if !ok {
		return false
	}
	e.layout.Seats[i].Status = status
	return true
}

// Committed is a successful booking together with what was sent for it.
type Committed struct {
	domain.BookingConfirmation
	SeatIDs    []int64
	PointsUsed int64
}

// Commit books the current selection. Redeemed points are re-clamped to the
// rate in effect at commit time. Only one commit may be outstanding; a
// second call while the first is pending returns ErrCommitInFlight without
// reaching the booker. A failed booking leaves the selection as it was.
func (e *Engine) Commit(ctx context.Context) (Committed, error) {
	e.mu.Lock()
	if len(e.selected) == 0 {
		e.mu.Unlock()
		return Committed{}, domain.ErrEmptySelection
	}
	if e.submitting {
		e.mu.Unlock()
		return Committed{}, domain.ErrCommitInFlight
	}
	e.submitting = true
	e.points = pricing.Clamp(e.points, e.maxPointsLocked(e.rate()))
	seatIDs := append([]int64(nil), e.selected...)
	points := e.points
	e.mu.Unlock()

	conf, err := e.booker.BookSeats(ctx, seatIDs, points)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitting = false
	if err != nil {
		return Committed{}, err
	}
	for _, id := range seatIDs {
		if i, ok := e.index[id]; ok {
			e.layout.Seats[i].Status = domain.SeatBooked
		}
	}
	e.reset()
	return Committed{BookingConfirmation: conf, SeatIDs: seatIDs, PointsUsed: points}, nil
}

func (e *Engine) IsSubmitting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.submitting
}

func (e *Engine) Layout() domain.SeatLayout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout.Clone()
}

func (e *Engine) reset() {
	e.selected = nil
	e.points = 0
}

func (e *Engine) position(seatID int64) int {
	for i, id := range e.selected {
		if id == seatID {
			return i
		}
	}
	return -1
}

func (e *Engine) rate() decimal.Decimal {
	if e.rates == nil {
		return decimal.NewFromInt(1)
	}
	return e.rates.Current()
}

func (e *Engine) subtotalLocked() decimal.Decimal {
	total := decimal.Zero
	for _, id := range e.selected {
		total = total.Add(e.layout.Seats[e.index[id]].Price)
	}
	return total
}

func (e *Engine) maxPointsLocked(rate decimal.Decimal) int64 {
	if !rate.IsPositive() {
		return 0
	}
	return e.surface.MaxPointsUsable(e.subtotalLocked(), e.userPoints, rate)
}
