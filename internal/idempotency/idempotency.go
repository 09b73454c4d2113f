package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	redisadapter "github.com/robertarktes/seatcheckout/internal/adapters/redis"
	"github.com/robertarktes/seatcheckout/internal/domain"
)

// Store is the subset of the redis adapter used here.
type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status int
	Result []byte
}

// lockTTL bounds how long a crashed request can block retries of the same key.
const lockTTL = time.Minute

func scoped(userID, key string) string {
	return userID + ":" + key
}

// Get returns the stored response for key, or nil if none was recorded.
func (i *Idempotency) Get(ctx context.Context, userID, key string) (*Response, error) {
	resp, err := i.store.Get(ctx, scoped(userID, key))
	if err != nil || resp == nil {
		return nil, err
	}
	return &Response{Status: resp.Status, Result: resp.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, userID, key string, resp Response) error {
	return i.store.Set(ctx, scoped(userID, key), redisadapter.IdempResponse{Status: resp.Status, Result: resp.Result}, i.ttl)
}

// Begin claims key for a new request. A key already being served yields
// ErrCommitInFlight.
func (i *Idempotency) Begin(ctx context.Context, userID, key string) error {
	ok, err := i.store.Lock(ctx, scoped(userID, key), lockTTL)
	if err != nil {
		return errors.Wrap(err, "idempotency lock")
	}
	if !ok {
		return errors.Wrapf(domain.ErrCommitInFlight, "idempotency key %q", key)
	}
	return nil
}

func (i *Idempotency) End(ctx context.Context, userID, key string) error {
	return i.store.Unlock(ctx, scoped(userID, key))
}
