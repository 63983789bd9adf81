// Package idempotency replays the stored response of a request that was
// already served under the same Idempotency-Key.
package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/tour-checkout/internal/adapters/redis"
)

const lockTTL = 2 * time.Minute

type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

// Get returns the stored response for key, or nil when there is none.
func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	resp, err := i.redis.Get(ctx, key)
	if err != nil || resp == nil {
		return nil, err
	}
	return &Response{Status: resp.Status, ContentType: resp.ContentType, Result: resp.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

// Begin claims key for the current request. It reports false while another
// request with the same key is in flight.
func (i *Idempotency) Begin(ctx context.Context, key string) (bool, error) {
	return i.redis.Reserve(ctx, key, lockTTL)
}

func (i *Idempotency) End(ctx context.Context, key string) error {
	return i.redis.Release(ctx, key)
}
