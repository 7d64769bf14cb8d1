package service

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/guildgate/internal/config"
	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/pkg/testdb"
	"github.com/GoPolymarket/guildgate/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *repository.RedisCommunityCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, repository.NewRedisCommunityCache(client, "gg", time.Minute)
}

func TestDirectoryResolvesThroughCacheLevels(t *testing.T) {
	db := testdb.Open(t)
	testdb.SeedCommunity(t, db, "c1")
	mr, cache := newRedisCache(t)
	ctx := context.Background()

	d := NewCommunityDirectory(&config.Config{}, repository.NewCommunityRepo(db), cache)
	c, err := d.Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Community c1", c.Name)
	assert.True(t, mr.Exists("gg:community:c1"))

	// a second instance without a database is served from redis
	other := NewCommunityDirectory(&config.Config{}, nil, cache)
	c, err = other.Resolve(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "pro", c.SubscriptionTier)

	d.Invalidate(ctx, "c1")
	assert.False(t, mr.Exists("gg:community:c1"))
}

func TestDirectoryNotFound(t *testing.T) {
	db := testdb.Open(t)
	d := NewCommunityDirectory(nil, repository.NewCommunityRepo(db), nil)
	_, err := d.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCommunityNotFound)

	empty := NewCommunityDirectory(nil, nil, nil)
	_, err = empty.Resolve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCommunityNotFound)
}

func TestDirectoryReturnsSoftDeleted(t *testing.T) {
	db := testdb.Open(t)
	repo := repository.NewCommunityRepo(db)
	testdb.SeedCommunity(t, db, "c1")
	require.NoError(t, repo.SoftDelete(context.Background(), "c1"))

	d := NewCommunityDirectory(nil, repo, nil)
	c, err := d.Resolve(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.DeletedAt.Valid)
}

func TestDirectoryLimiters(t *testing.T) {
	d := NewCommunityDirectory(&config.Config{RateLimit: config.RateLimitConfig{QPS: 5, Burst: 10}}, nil, nil)

	d.Register(&model.Community{ID: "default"})
	l := d.GetLimiter("default")
	require.NotNil(t, l)
	assert.Equal(t, rate.Limit(5), l.Limit())
	assert.Equal(t, 10, l.Burst())

	d.Register(&model.Community{ID: "custom", RateQPS: 1, RateBurst: 2})
	l = d.GetLimiter("custom")
	assert.Equal(t, rate.Limit(1), l.Limit())
	assert.Equal(t, 2, l.Burst())

	// re-registering with the same limits keeps the limiter and its tokens
	d.Register(&model.Community{ID: "custom", RateQPS: 1, RateBurst: 2})
	assert.Same(t, l, d.GetLimiter("custom"))

	unlimited := NewCommunityDirectory(nil, nil, nil)
	unlimited.Register(&model.Community{ID: "x"})
	assert.Equal(t, rate.Inf, unlimited.GetLimiter("x").Limit())
	assert.Nil(t, unlimited.GetLimiter("unknown"))
}
