// Package venuestay prices whole-venue bookings over a date range.
package venuestay

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

const DateLayout = "2006-01-02"

type Stay struct {
	Start time.Time
	End   time.Time
}

// Parse reads two YYYY-MM-DD dates. End must fall after start.
func Parse(start, end string) (Stay, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Stay{}, errors.Wrapf(domain.ErrInvalidInput, "start date %q", start)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Stay{}, errors.Wrapf(domain.ErrInvalidInput, "end date %q", end)
	}
	return New(s, e)
}

func New(start, end time.Time) (Stay, error) {
	if !end.After(start) {
		return Stay{}, errors.Wrap(domain.ErrInvalidInput, "end date must be after start date")
	}
	return Stay{Start: start, End: end}, nil
}

// Days counts started days, never fewer than one.
func (s Stay) Days() int {
	d := int(math.Ceil(s.End.Sub(s.Start).Hours() / 24))
	if d < 1 {
		return 1
	}
	return d
}

func (s Stay) DurationHours() int {
	return s.Days() * 24
}

func (s Stay) Subtotal(pricePerDay decimal.Decimal) decimal.Decimal {
	return pricePerDay.Mul(decimal.NewFromInt(int64(s.Days())))
}
