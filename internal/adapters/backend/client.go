// Package backend is the HTTP+JSON client for the remote booking backend:
// venue catalog, seat booking, points and conversion rate.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     observability.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger observability.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: logger,
	}
}

// envelope covers both the {"data": ...} wrapper some endpoints use and the
// {"success": false, "message": "..."} failure shape.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	start := time.Now()
	defer func() {
		observability.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: encode request", op)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", op)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s: request failed", op)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "%s: read response", op)
	}

	var env envelope
	_ = json.Unmarshal(raw, &env)

	if resp.StatusCode >= 400 || (env.Success != nil && !*env.Success) {
		msg := env.Message
		if msg == "" {
			msg = env.Error
		}
		if msg == "" && resp.StatusCode >= 400 {
			msg = strings.TrimSpace(string(raw))
		}
		c.logger.WithField("op", op).WithField("status", resp.StatusCode).Warn("backend rejected request: ", msg)
		status := resp.StatusCode
		if status < 400 {
			status = http.StatusConflict
		}
		return &domain.BookingError{Status: status, Message: msg}
	}

	if out == nil {
		return nil
	}
	src := raw
	if len(env.Data) > 0 && string(env.Data) != "null" {
		src = env.Data
	}
	if err := json.Unmarshal(src, out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

func (c *Client) GetSeatLayout(ctx context.Context, eventID int64) (domain.SeatLayout, error) {
	var layout domain.SeatLayout
	err := c.do(ctx, "get_seat_layout", http.MethodGet, fmt.Sprintf("/api/events/%d/seats", eventID), "", nil, &layout)
	return layout, err
}

type bookSeatsRequest struct {
	SeatIDs     []int64 `json:"seatIds"`
	PointsToUse int64   `json:"pointsToUse"`
}

func (c *Client) BookSeats(ctx context.Context, token string, eventID int64, seatIDs []int64, pointsToUse int64) (domain.BookingConfirmation, error) {
	var conf domain.BookingConfirmation
	err := c.do(ctx, "book_seats", http.MethodPost, fmt.Sprintf("/api/events/%d/seats/book", eventID), token,
		bookSeatsRequest{SeatIDs: seatIDs, PointsToUse: pointsToUse}, &conf)
	return conf, err
}

func (c *Client) GetPointsBalance(ctx context.Context, token string) (domain.PointsBalance, error) {
	var bal domain.PointsBalance
	err := c.do(ctx, "get_points_balance", http.MethodGet, "/api/points/balance", token, nil, &bal)
	return bal, err
}

// GetConversionRate returns points per currency unit. The endpoint answers
// either a bare number or {"pointsPerDollar": n}; fractional rates are kept.
func (c *Client) GetConversionRate(ctx context.Context) (decimal.Decimal, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "get_conversion_rate", http.MethodGet, "/api/admin/settings/conversion-rate", "", nil, &raw); err != nil {
		return decimal.Zero, err
	}
	var n decimal.Decimal
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var body struct {
		PointsPerDollar decimal.Decimal `json:"pointsPerDollar"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, errors.Wrap(err, "get_conversion_rate: decode response")
	}
	return body.PointsPerDollar, nil
}

func (c *Client) GetEvent(ctx context.Context, token string, eventID int64) (domain.Event, error) {
	var ev domain.Event
	err := c.do(ctx, "get_event", http.MethodGet, fmt.Sprintf("/api/events/%d", eventID), token, nil, &ev)
	return ev, err
}

func (c *Client) GetVenue(ctx context.Context, token string, venueID int64) (domain.Venue, error) {
	var v domain.Venue
	err := c.do(ctx, "get_venue", http.MethodGet, fmt.Sprintf("/api/venues/%d", venueID), token, nil, &v)
	return v, err
}

func (c *Client) CheckVenueAvailability(ctx context.Context, token string, venueID int64, startDate, endDate string) (bool, error) {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	var body struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, "check_venue_availability", http.MethodGet,
		fmt.Sprintf("/api/venues/%d/availability?%s", venueID, q.Encode()), token, nil, &body)
	return body.Available, err
}
