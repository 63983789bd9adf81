package rateLimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	redisadapter "github.com/robertarktes/tour-checkout/internal/adapters/redis"
	"github.com/robertarktes/tour-checkout/internal/rateLimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	rl := rateLimit.NewRateLimiter(redisadapter.NewCache(db))
	ctx := context.Background()

	mock.ExpectIncr("rl:attempts:10.0.0.1").SetVal(1)
	mock.ExpectExpire("rl:attempts:10.0.0.1", time.Minute).SetVal(true)
	ok, err := rl.Allow(ctx, "attempts:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectIncr("rl:attempts:10.0.0.1").SetVal(2)
	ok, err = rl.Allow(ctx, "attempts:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectIncr("rl:attempts:10.0.0.1").SetVal(3)
	ok, err = rl.Allow(ctx, "attempts:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
