package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/checkout"
	"github.com/robertarktes/tour-checkout/internal/domain"
)

// AttemptStore keeps the read model of running and recently settled
// attempts, keyed by gateway order id.
type AttemptStore struct {
	cache *Cache
	ttl   time.Duration
}

func NewAttemptStore(cache *Cache, ttl time.Duration) *AttemptStore {
	return &AttemptStore{cache: cache, ttl: ttl}
}

func attemptKey(orderID string) string {
	return "attempt:" + orderID
}

func (s *AttemptStore) Put(ctx context.Context, st checkout.AttemptStatus) error {
	return s.cache.SetJSON(ctx, attemptKey(st.OrderID), st, s.ttl)
}

func (s *AttemptStore) Get(ctx context.Context, orderID string) (*checkout.AttemptStatus, error) {
	var st checkout.AttemptStatus
	ok, err := s.cache.GetJSON(ctx, attemptKey(orderID), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "attempt for order %s", orderID)
	}
	return &st, nil
}

// Claim marks the first widget callback for orderID. Replicas race on the
// same key, so exactly one of them reconciles the callback.
func (s *AttemptStore) Claim(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	ok, err := s.cache.Client().SetNX(ctx, attemptKey(orderID)+":claim", 1, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "claim callback for %s", orderID)
	}
	return ok, nil
}
