package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	redisadapter "github.com/robertarktes/seatcheckout/internal/adapters/redis"
	"github.com/robertarktes/seatcheckout/internal/idempotency"
)

type lateRequestKey struct{}

// gatedIdemStore holds the late request's lock attempt until the first
// request has released the key, and reports when the late request first
// touches the store.
type gatedIdemStore struct {
	*memIdemStore
	lateEntered  chan struct{}
	firstDone    chan struct{}
	enteredOnce  sync.Once
	unlockedOnce sync.Once
}

func (g *gatedIdemStore) late(ctx context.Context) bool {
	v, _ := ctx.Value(lateRequestKey{}).(bool)
	return v
}

func (g *gatedIdemStore) Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error) {
	if g.late(ctx) {
		g.enteredOnce.Do(func() { close(g.lateEntered) })
	}
	return g.memIdemStore.Get(ctx, key)
}

func (g *gatedIdemStore) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.late(ctx) {
		g.enteredOnce.Do(func() { close(g.lateEntered) })
		<-g.firstDone
	}
	return g.memIdemStore.Lock(ctx, key, ttl)
}

func (g *gatedIdemStore) Unlock(ctx context.Context, key string) error {
	err := g.memIdemStore.Unlock(ctx, key)
	if !g.late(ctx) {
		g.unlockedOnce.Do(func() { close(g.firstDone) })
	}
	return err
}

func TestIdempotencyMiddleware_WaitingRequestReplaysFinishedOne(t *testing.T) {
	store := &gatedIdemStore{
		memIdemStore: &memIdemStore{data: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}},
		lateEntered:  make(chan struct{}),
		firstDone:    make(chan struct{}),
	}
	var runs atomic.Int32
	handler := IdempotencyMiddleware(idempotency.NewIdempotency(store, time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			runs.Add(1)
			writeJSON(w, http.StatusCreated, map[string]int64{"booking_id": 900})
		}))

	request := func(late bool) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/v1/bookings/tickets", nil)
		r.Header.Set("Idempotency-Key", "same-booking-key-0001")
		ctx := withPrincipal(r.Context(), Principal{UserID: "alice"})
		if late {
			ctx = context.WithValue(ctx, lateRequestKey{}, true)
		}
		return r.WithContext(ctx)
	}

	lateRec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(lateRec, request(true))
		close(done)
	}()

	<-store.lateEntered
	firstRec := httptest.NewRecorder()
	handler.ServeHTTP(firstRec, request(false))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("late request did not finish")
	}

	if firstRec.Code != http.StatusCreated || lateRec.Code != http.StatusCreated {
		t.Fatalf("codes=[%d %d]", firstRec.Code, lateRec.Code)
	}
	if n := runs.Load(); n != 1 {
		t.Errorf("handler ran %d times for one key", n)
	}
	if lateRec.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("late request should be a replay")
	}
	if lateRec.Body.String() != firstRec.Body.String() {
		t.Errorf("replayed body %q, want %q", lateRec.Body.String(), firstRec.Body.String())
	}
}

func TestIdempotencyMiddleware_ConcurrentKeyIsRejected(t *testing.T) {
	store := &memIdemStore{data: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}}
	store.locks["alice:held-booking-key-0001"] = true
	var runs atomic.Int32
	handler := IdempotencyMiddleware(idempotency.NewIdempotency(store, time.Hour))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { runs.Add(1) }))

	r := httptest.NewRequest(http.MethodPost, "/v1/bookings/venue", nil)
	r.Header.Set("Idempotency-Key", "held-booking-key-0001")
	r = r.WithContext(withPrincipal(r.Context(), Principal{UserID: "alice"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if runs.Load() != 0 {
		t.Error("handler must not run while the key is held")
	}
	if !store.locks["alice:held-booking-key-0001"] {
		t.Error("the other request's lock must not be released")
	}
}
