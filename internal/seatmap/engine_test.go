package seatmap_test

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robertarktes/seatcheckout/internal/domain"
	"github.com/robertarktes/seatcheckout/internal/pricing"
	"github.com/robertarktes/seatcheckout/internal/seatmap"
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLayout() domain.SeatLayout {
	return domain.SeatLayout{
		Categories: []domain.SeatCategory{
			{ID: 1, Name: "General", Price: price("50"), Rows: []string{"A", "B"}, AisleAfter: []int{2}},
		},
		Seats: []domain.EventSeat{
			{ID: 1, RowLabel: "A", SeatNumber: 1, CategoryID: 1, Price: price("50"), Status: domain.SeatAvailable},
			{ID: 2, RowLabel: "A", SeatNumber: 2, CategoryID: 1, Price: price("50"), Status: domain.SeatBooked},
			{ID: 3, RowLabel: "A", SeatNumber: 3, CategoryID: 1, Price: price("50"), Status: domain.SeatAvailable},
			{ID: 4, RowLabel: "B", SeatNumber: 1, CategoryID: 1, Price: price("50"), Status: domain.SeatAvailable},
			{ID: 5, RowLabel: "B", SeatNumber: 2, CategoryID: 1, Price: price("50"), Status: domain.SeatHeld},
			{ID: 6, RowLabel: "B", SeatNumber: 3, CategoryID: 1, Price: price("50"), Status: domain.SeatAvailable},
		},
	}
}

func noBooker(t *testing.T) seatmap.Booker {
	return seatmap.BookerFunc(func(context.Context, []int64, int64) (domain.BookingConfirmation, error) {
		t.Fatal("booker must not be called")
		return domain.BookingConfirmation{}, nil
	})
}

func newEngine(t *testing.T, opts seatmap.Options) *seatmap.Engine {
	if opts.Rates == nil {
		opts.Rates = seatmap.FixedRate(price("100"))
	}
	if opts.Booker == nil {
		opts.Booker = noBooker(t)
	}
	return seatmap.NewEngine(testLayout(), opts)
}

func TestEngine_BasicSelection(t *testing.T) {
	e := newEngine(t, seatmap.Options{})

	if _, err := e.ToggleSeat(1); err != nil {
		t.Fatal(err)
	}
	snap := e.Snapshot()
	if len(snap.SelectedSeatIDs) != 1 || snap.SelectedSeatIDs[0] != 1 {
		t.Fatalf("expected [1], got %v", snap.SelectedSeatIDs)
	}
	if !snap.Subtotal.Equal(price("50")) {
		t.Errorf("expected subtotal 50, got %s", snap.Subtotal)
	}

	changed, err := e.ToggleSeat(2)
	if err != nil || changed {
		t.Fatalf("booked seat must be ignored, changed=%v err=%v", changed, err)
	}
	snap = e.Snapshot()
	if len(snap.SelectedSeatIDs) != 1 || !snap.Subtotal.Equal(price("50")) {
		t.Errorf("selection changed after booked click: %v %s", snap.SelectedSeatIDs, snap.Subtotal)
	}
	if snap.SelectedLabels[0] != "A1" {
		t.Errorf("expected label A1, got %s", snap.SelectedLabels[0])
	}
}

func TestEngine_UnknownSeat(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	if _, err := e.ToggleSeat(99); !errors.Is(err, domain.ErrUnknownSeat) {
		t.Errorf("expected unknown seat, got %v", err)
	}
}

func TestEngine_ToggleTwiceRestores(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	e.ToggleSeat(1)
	before := e.Snapshot().SelectedSeatIDs

	e.ToggleSeat(3)
	e.ToggleSeat(3)
	after := e.Snapshot().SelectedSeatIDs
	if len(before) != len(after) || after[0] != before[0] {
		t.Errorf("expected %v, got %v", before, after)
	}
}

func TestEngine_SelectionOrderIsClickOrder(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	for _, id := range []int64{6, 1, 4} {
		e.ToggleSeat(id)
	}
	e.ToggleSeat(1)
	got := e.Snapshot().SelectedSeatIDs
	want := []int64{6, 4}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestEngine_MaxSeatsBound(t *testing.T) {
	e := newEngine(t, seatmap.Options{MaxSeats: 2})
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		e.ToggleSeat(int64(rng.Intn(6) + 1))
		if n := len(e.Snapshot().SelectedSeatIDs); n > 2 {
			t.Fatalf("step %d: %d seats selected with max 2", i, n)
		}
	}

	e.Cancel()
	e.ToggleSeat(1)
	e.ToggleSeat(3)
	changed, _ := e.ToggleSeat(4)
	if changed {
		t.Error("expected third seat to be rejected when full")
	}
}

func TestEngine_UnavailableNeverSelected(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	for _, id := range []int64{2, 5} {
		if changed, _ := e.ToggleSeat(id); changed {
			t.Errorf("seat %d is not available but was toggled", id)
		}
	}
	if n := len(e.Snapshot().SelectedSeatIDs); n != 0 {
		t.Errorf("expected empty selection, got %d", n)
	}
}

func TestEngine_PointsClampAndReset(t *testing.T) {
	e := newEngine(t, seatmap.Options{UserPoints: 5000})
	e.ToggleSeat(1)
	e.ToggleSeat(3)

	if got := e.SetPointsToRedeem(12000); got != 5000 {
		t.Fatalf("expected clamp to 5000, got %d", got)
	}
	snap := e.Snapshot()
	if snap.MaxPointsUsable != 5000 {
		t.Errorf("expected max 5000, got %d", snap.MaxPointsUsable)
	}
	if !snap.FinalPrice.Equal(price("50")) {
		t.Errorf("expected final 50, got %s", snap.FinalPrice)
	}

	if got := e.SetPointsToRedeem(-3); got != 0 {
		t.Errorf("expected negative to clamp to 0, got %d", got)
	}

	e.SetPointsToRedeem(100)
	e.ToggleSeat(4)
	if p := e.Snapshot().PointsToRedeem; p != 0 {
		t.Errorf("expected points reset after add, got %d", p)
	}
	e.SetPointsToRedeem(100)
	e.ToggleSeat(4)
	if p := e.Snapshot().PointsToRedeem; p != 0 {
		t.Errorf("expected points reset after remove, got %d", p)
	}
}

func TestEngine_PointsInvariantHolds(t *testing.T) {
	e := newEngine(t, seatmap.Options{UserPoints: 7321})
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		if rng.Intn(2) == 0 {
			e.ToggleSeat(int64(rng.Intn(6) + 1))
		} else {
			e.SetPointsToRedeem(rng.Int63n(30000) - 5000)
		}
		s := e.Snapshot()
		limit := s.Subtotal.Mul(s.ConversionRate).Floor().IntPart()
		if limit > s.UserPoints {
			limit = s.UserPoints
		}
		if s.PointsToRedeem < 0 || s.PointsToRedeem > limit {
			t.Fatalf("step %d: points %d outside [0, %d]", i, s.PointsToRedeem, limit)
		}
		want := pricing.Final(s.Subtotal, decimal.NewFromInt(s.PointsToRedeem).Div(s.ConversionRate))
		if !s.FinalPrice.Equal(want) {
			t.Fatalf("step %d: final %s, want %s", i, s.FinalPrice, want)
		}
	}
}

type mutableRate struct{ v atomic.Value }

func (m *mutableRate) Current() decimal.Decimal { return m.v.Load().(decimal.Decimal) }

func TestEngine_RateDropReclampsPoints(t *testing.T) {
	r := &mutableRate{}
	r.v.Store(price("100"))
	e := newEngine(t, seatmap.Options{UserPoints: 100000, Rates: r})
	e.ToggleSeat(1)
	e.SetPointsToRedeem(5000)

	r.v.Store(price("10"))
	snap := e.Snapshot()
	if snap.PointsToRedeem != 500 {
		t.Errorf("expected points re-clamped to 500, got %d", snap.PointsToRedeem)
	}
	if !snap.FinalPrice.IsZero() {
		t.Errorf("expected final 0, got %s", snap.FinalPrice)
	}
}

func TestEngine_CommitAfterRateDropSendsClampedPoints(t *testing.T) {
	r := &mutableRate{}
	r.v.Store(price("100"))
	var gotPoints int64
	booker := seatmap.BookerFunc(func(_ context.Context, _ []int64, points int64) (domain.BookingConfirmation, error) {
		gotPoints = points
		return domain.BookingConfirmation{BookingID: 9}, nil
	})
	e := newEngine(t, seatmap.Options{UserPoints: 100000, Rates: r, Booker: booker})
	e.ToggleSeat(1)
	e.SetPointsToRedeem(5000)

	r.v.Store(price("10"))
	conf, err := e.Commit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if gotPoints != 500 || conf.PointsUsed != 500 {
		t.Errorf("expected 500 points at the lowered rate, booker got %d, reported %d", gotPoints, conf.PointsUsed)
	}
}

func TestEngine_CommitEmptySelection(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	if _, err := e.Commit(context.Background()); !errors.Is(err, domain.ErrEmptySelection) {
		t.Errorf("expected empty selection, got %v", err)
	}
}

func TestEngine_CommitSuccessResets(t *testing.T) {
	var gotSeats []int64
	var gotPoints int64
	booker := seatmap.BookerFunc(func(_ context.Context, seatIDs []int64, points int64) (domain.BookingConfirmation, error) {
		gotSeats, gotPoints = seatIDs, points
		return domain.BookingConfirmation{BookingID: 77, Quantity: len(seatIDs)}, nil
	})
	e := newEngine(t, seatmap.Options{UserPoints: 1000, Booker: booker})
	e.ToggleSeat(3)
	e.ToggleSeat(1)
	e.SetPointsToRedeem(250)

	conf, err := e.Commit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if conf.BookingID != 77 {
		t.Errorf("expected booking 77, got %d", conf.BookingID)
	}
	if len(gotSeats) != 2 || gotSeats[0] != 3 || gotSeats[1] != 1 || gotPoints != 250 {
		t.Errorf("booker got seats=%v points=%d", gotSeats, gotPoints)
	}
	if len(conf.SeatIDs) != 2 || conf.PointsUsed != 250 {
		t.Errorf("commit should report what was booked, got %+v", conf)
	}
	snap := e.Snapshot()
	if len(snap.SelectedSeatIDs) != 0 || snap.PointsToRedeem != 0 || snap.IsSubmitting {
		t.Errorf("expected reset after commit, got %+v", snap)
	}
	if changed, _ := e.ToggleSeat(1); changed {
		t.Error("committed seat should now be booked")
	}
}

func TestEngine_CommitFailureKeepsSelection(t *testing.T) {
	booker := seatmap.BookerFunc(func(context.Context, []int64, int64) (domain.BookingConfirmation, error) {
		return domain.BookingConfirmation{}, &domain.BookingError{Status: 409, Message: "seat A3 no longer available"}
	})
	e := newEngine(t, seatmap.Options{Booker: booker})
	e.ToggleSeat(1)
	e.ToggleSeat(3)

	_, err := e.Commit(context.Background())
	var be *domain.BookingError
	if !errors.As(err, &be) || be.Message != "seat A3 no longer available" {
		t.Fatalf("expected backend message, got %v", err)
	}
	snap := e.Snapshot()
	if len(snap.SelectedSeatIDs) != 2 || snap.SelectedSeatIDs[0] != 1 || snap.SelectedSeatIDs[1] != 3 {
		t.Errorf("expected [1 3] kept, got %v", snap.SelectedSeatIDs)
	}
	if e.IsSubmitting() {
		t.Error("expected submitting to be cleared")
	}
}

func TestEngine_DoubleSubmitGuard(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{})
	booker := seatmap.BookerFunc(func(context.Context, []int64, int64) (domain.BookingConfirmation, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
		return domain.BookingConfirmation{BookingID: 1}, nil
	})
	e := newEngine(t, seatmap.Options{Booker: booker})
	e.ToggleSeat(1)

	done := make(chan error, 1)
	go func() {
		_, err := e.Commit(context.Background())
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first commit never reached the booker")
	}
	if !e.IsSubmitting() {
		t.Error("expected submitting while in flight")
	}
	if _, err := e.Commit(context.Background()); !errors.Is(err, domain.ErrCommitInFlight) {
		t.Errorf("expected in-flight rejection, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected one booker call, got %d", n)
	}
}

func TestEngine_ApplySeatStatus(t *testing.T) {
	e := newEngine(t, seatmap.Options{})
	e.ToggleSeat(1)
	if !e.ApplySeatStatus(1, domain.SeatBooked) {
		t.Fatal("expected seat to be known")
	}
	if n := len(e.Snapshot().SelectedSeatIDs); n != 1 {
		t.Errorf("external status change must not alter selection, got %d seats", n)
	}
	if changed, _ := e.ToggleSeat(1); changed {
		t.Error("seat is booked now and should be ignored")
	}
	if e.ApplySeatStatus(99, domain.SeatBooked) {
		t.Error("unknown seat should report false")
	}
}
