package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/adapters/backend"
	"github.com/robertarktes/seatcheckout/internal/config"
	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/session"
)

type Backend interface {
	GetSeatLayout(ctx context.Context, eventID int64) (domain.SeatLayout, error)
	GetPointsBalance(ctx context.Context, token string) (domain.PointsBalance, error)
	GetEvent(ctx context.Context, token string, eventID int64) (domain.Event, error)
	GetVenue(ctx context.Context, token string, venueID int64) (domain.Venue, error)
	CheckVenueAvailability(ctx context.Context, token string, venueID int64, startDate, endDate string) (bool, error)
	CreateBookingWithPoints(ctx context.Context, token string, req backend.WithPointsRequest) (domain.BookingConfirmation, error)
}

type LayoutCache interface {
	GetLayout(ctx context.Context, eventID int64) (domain.SeatLayout, bool, error)
	SetLayout(ctx context.Context, eventID int64, layout domain.SeatLayout) error
	InvalidateLayout(ctx context.Context, eventID int64) error
}

type Receipts interface {
	RecordBooking(ctx context.Context, receipt domain.Receipt) error
	ReceiptsByUser(ctx context.Context, userID string, limit int) ([]domain.Receipt, error)
}

type Auditor interface {
	LogCommit(ctx context.Context, receipt domain.Receipt) error
	LogFailure(ctx context.Context, userID, surface string, cause error) error
}

type Rates interface {
	Current() decimal.Decimal
	UpdatedAt() (time.Time, bool)
	Refresh(ctx context.Context) (decimal.Decimal, error)
}

// Deps are the collaborators the handlers need. Readiness names each check.
type Deps struct {
	Config    *config.Config
	Backend   Backend
	Layouts   LayoutCache
	Receipts  Receipts
	Audit     Auditor
	Rates     Rates
	Sessions  *session.Manager
	Readiness map[string]func(ctx context.Context) error
}

type Handlers struct {
	Deps
	validate *validator.Validate
	now      func() time.Time
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{Deps: deps, validate: validator.New(), now: time.Now}
}

func (h *Handlers) decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, "malformed request body")
	}
	if err := h.validate.Struct(v); err != nil {
		return errors.Wrap(domain.ErrInvalidInput, err.Error())
	}
	return nil
}

func principal(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

// layout serves the seat layout from cache when it can. Cache failures only
// cost a backend round trip.
func (h *Handlers) layout(ctx context.Context, eventID int64) (domain.SeatLayout, error) {
	log := loggerFrom(ctx).WithField("event_id", eventID)
	if cached, ok, err := h.Layouts.GetLayout(ctx, eventID); err != nil {
		log.Warn("layout cache read failed: ", err)
	} else if ok {
		return cached, nil
	}

	layout, err := h.Backend.GetSeatLayout(ctx, eventID)
	if err != nil {
		return domain.SeatLayout{}, err
	}
	if err := h.Layouts.SetLayout(ctx, eventID, layout); err != nil {
		log.Warn("layout cache write failed: ", err)
	}
	return layout, nil
}

// finalize keeps the local record of a confirmed booking. The booking has
// already happened remotely, so failures here are logged rather than
// returned.
func (h *Handlers) finalize(ctx context.Context, receipt domain.Receipt) {
	log := loggerFrom(ctx).WithField("booking_id", receipt.BookingID).WithField("surface", receipt.Surface)
	if err := h.Receipts.RecordBooking(ctx, receipt); err != nil {
		log.Error("record booking receipt: ", err)
	}
	if err := h.Audit.LogCommit(ctx, receipt); err != nil {
		log.Warn("audit commit: ", err)
	}
	observability.Commits.WithLabelValues(receipt.Surface, "success").Inc()
}

// failed records a booking attempt that reached the point of committing.
// Validation errors and duplicate submits are not counted.
func (h *Handlers) failed(ctx context.Context, userID, surface string, err error) {
	if errors.IsAny(err, domain.ErrCommitInFlight, domain.ErrEmptySelection) {
		return
	}
	observability.Commits.WithLabelValues(surface, "failed").Inc()
	if auditErr := h.Audit.LogFailure(ctx, userID, surface, err); auditErr != nil {
		loggerFrom(ctx).Warn("audit failure: ", auditErr)
	}
}

type confirmationResponse struct {
	ReceiptID   uuid.UUID       `json:"receipt_id"`
	BookingID   int64           `json:"booking_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Quantity    int             `json:"quantity"`
	PointsUsed  int64           `json:"points_used"`
}

func confirmation(r domain.Receipt) confirmationResponse {
	return confirmationResponse{
		ReceiptID:   r.ID,
		BookingID:   r.BookingID,
		TotalAmount: r.TotalAmount,
		Quantity:    r.Quantity,
		PointsUsed:  r.PointsUsed,
	}
}

type rateResponse struct {
	PointsPerDollar decimal.Decimal `json:"points_per_dollar"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
	Refreshed       *bool           `json:"refreshed,omitempty"`
}

func (h *Handlers) rateView() rateResponse {
	resp := rateResponse{PointsPerDollar: h.Rates.Current()}
	if at, ok := h.Rates.UpdatedAt(); ok {
		resp.UpdatedAt = &at
	}
	return resp
}

func (h *Handlers) GetConversionRate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rateView())
}

// RefreshConversionRate re-reads the rate now. A failed fetch still answers
// with the last good rate.
func (h *Handlers) RefreshConversionRate(w http.ResponseWriter, r *http.Request) {
	_, err := h.Rates.Refresh(r.Context())
	refreshed := err == nil
	if err != nil {
		loggerFrom(r.Context()).Warn("conversion rate refresh failed: ", err)
	}
	resp := h.rateView()
	resp.Refreshed = &refreshed
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ListReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	receipts, err := h.Receipts.ReceiptsByUser(r.Context(), principal(r).UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []domain.Receipt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"receipts": receipts})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failing := map[string]string{}
	for name, check := range h.Readiness {
		if err := check(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"failing": failing})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "invalid %s", name)
	}
	return v, nil
}
