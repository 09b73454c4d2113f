// Package pricing holds the one points-redemption calculation shared by every
// booking surface: seat map, event tickets and venue stays.
package pricing

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
)

// CapRounding decides how subtotal*rate is turned into a whole number of
// points when computing the redemption cap.
type CapRounding int

const (
	Floor CapRounding = iota
	Ceil
)

// Surface is the per-booking-flow configuration. Platform fees are charged in
// points on top of redemption and are set independently for each surface.
type Surface struct {
	Name              string
	PlatformFeePoints int64
	CapRounding       CapRounding
}

type Quote struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	ConversionRate    decimal.Decimal `json:"conversion_rate"`
	UserPoints        int64           `json:"user_points"`
	MaxPointsUsable   int64           `json:"max_points_usable"`
	PointsToRedeem    int64           `json:"points_to_redeem"`
	PointsDiscount    decimal.Decimal `json:"points_discount"`
	FinalPrice        decimal.Decimal `json:"final_price"`
	PlatformFeePoints int64           `json:"platform_fee_points"`
	PointsRequired    int64           `json:"points_required"`
}

func validRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return errors.Wrapf(domain.ErrInvalidInput, "conversion rate must be positive, got %s", rate)
	}
	return nil
}

// MaxPointsUsable is min(userPoints, round(subtotal*rate)) under the surface
// rounding. It is never negative.
func (s Surface) MaxPointsUsable(subtotal decimal.Decimal, userPoints int64, rate decimal.Decimal) int64 {
	inPoints := subtotal.Mul(rate)
	if s.CapRounding == Ceil {
		inPoints = inPoints.Ceil()
	} else {
		inPoints = inPoints.Floor()
	}
	limit := inPoints.IntPart()
	if userPoints < limit {
		limit = userPoints
	}
	if limit < 0 {
		return 0
	}
	return limit
}

// Clamp pulls requested into [0, limit].
func Clamp(requested, limit int64) int64 {
	if requested < 0 || limit <= 0 {
		return 0
	}
	if requested > limit {
		return limit
	}
	return requested
}

// Discount converts redeemed points to currency.
func Discount(points int64, rate decimal.Decimal) decimal.Decimal {
	if points <= 0 || !rate.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(points).Div(rate)
}

// Final is subtotal less discount, floored at zero.
func Final(subtotal, discount decimal.Decimal) decimal.Decimal {
	f := subtotal.Sub(discount)
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}

// Quote prices a subtotal for a buyer holding userPoints who asks to redeem
// requested points. The request is clamped, never rejected.
func (s Surface) Quote(subtotal decimal.Decimal, userPoints, requested int64, rate decimal.Decimal) (Quote, error) {
	if err := validRate(rate); err != nil {
		return Quote{}, err
	}
	if subtotal.IsNegative() {
		return Quote{}, errors.Wrap(domain.ErrInvalidInput, "subtotal must not be negative")
	}
	limit := s.MaxPointsUsable(subtotal, userPoints, rate)
	points := Clamp(requested, limit)
	discount := Discount(points, rate)
	return Quote{
		Subtotal:          subtotal,
		ConversionRate:    rate,
		UserPoints:        userPoints,
		MaxPointsUsable:   limit,
		PointsToRedeem:    points,
		PointsDiscount:    discount,
		FinalPrice:        Final(subtotal, discount),
		PlatformFeePoints: s.PlatformFeePoints,
		PointsRequired:    points + s.PlatformFeePoints,
	}, nil
}

// CheckBalance verifies the buyer can cover redemption plus the platform fee.
func (s Surface) CheckBalance(q Quote) error {
	if q.UserPoints >= q.PointsRequired {
		return nil
	}
	msg := fmt.Sprintf("not enough points: need %d points (including %d platform fee) but you have %d",
		q.PointsRequired, q.PlatformFeePoints, q.UserPoints)
	return errors.Mark(errors.New(msg), domain.ErrInsufficientPoints)
}
