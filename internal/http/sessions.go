package http

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/seatmap"
	"github.com/robertarktes/seatcheckout/internal/session"
)

type openSessionRequest struct {
	EventID int64 `json:"event_id" validate:"required,gt=0"`
}

type setPointsRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

type sessionResponse struct {
	ID      uuid.UUID `json:"id"`
	EventID int64     `json:"event_id"`
	seatmap.Snapshot
}

func sessionView(s *session.Session) sessionResponse {
	return sessionResponse{ID: s.ID, EventID: s.EventID, Snapshot: s.Engine.Snapshot()}
}

func (h *Handlers) session(r *http.Request) (*session.Session, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "invalid session id")
	}
	return h.Sessions.Get(id, principal(r).UserID)
}

// OpenSession loads the event's seat layout and the buyer's balance side by
// side and starts a seat map engine over them.
func (h *Handlers) OpenSession(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	var req openSessionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var layout domain.SeatLayout
	var balance domain.PointsBalance
	g, gctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		layout, err = h.layout(gctx, req.EventID)
		return err
	})
	g.Go(func() error {
		var err error
		balance, err = h.Backend.GetPointsBalance(gctx, p.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	s := h.Sessions.Open(p.UserID, p.Token, req.EventID, layout, balance.Points)
	loggerFrom(r.Context()).WithField("session_id", s.ID.String()).Info("session opened for event ", req.EventID)
	writeJSON(w, http.StatusCreated, sessionView(s))
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (h *Handlers) GetSessionLayout(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rows := s.Engine.Layout().Rows()
	if rows == nil {
		rows = []domain.DisplayRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

func (h *Handlers) ToggleSeat(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	seatID, err := pathInt(r, "seatID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	changed, err := s.Engine.ToggleSeat(seatID)
	switch {
	case err != nil:
		observability.SeatToggles.WithLabelValues("unknown").Inc()
		writeError(w, r, err)
		return
	case changed:
		observability.SeatToggles.WithLabelValues("toggled").Inc()
	default:
		observability.SeatToggles.WithLabelValues("ignored").Inc()
	}
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (h *Handlers) SetPoints(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setPointsRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.Engine.SetPointsToRedeem(*req.Points)
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (h *Handlers) CancelSelection(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.Engine.Cancel()
	writeJSON(w, http.StatusOK, sessionView(s))
}

func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidInput, "invalid session id"))
		return
	}
	if err := h.Sessions.Close(id, principal(r).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Commit books the session's selection. The backend call runs to completion
// even if the buyer disconnects.
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	s, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	surface := h.Config.SeatMap.Name

	committed, err := s.Engine.Commit(ctx)
	if err != nil {
		h.failed(ctx, s.UserID, surface, err)
		writeError(w, r, err)
		return
	}

	quantity := committed.Quantity
	if quantity == 0 {
		quantity = len(committed.SeatIDs)
	}
	eventID := s.EventID
	receipt := domain.Receipt{
		ID:          uuid.New(),
		BookingID:   committed.BookingID,
		UserID:      s.UserID,
		EventID:     &eventID,
		SeatIDs:     committed.SeatIDs,
		Quantity:    quantity,
		PointsUsed:  committed.PointsUsed,
		TotalAmount: committed.TotalAmount,
		Surface:     surface,
		ConfirmedAt: h.now().UTC(),
	}
	h.finalize(ctx, receipt)
	if err := h.Layouts.InvalidateLayout(ctx, s.EventID); err != nil {
		loggerFrom(ctx).Warn("invalidate layout cache: ", err)
	}

	writeJSON(w, http.StatusCreated, confirmation(receipt))
}
