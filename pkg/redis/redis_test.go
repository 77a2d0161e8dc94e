package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billstate/billstate/pkg/redis"
)

func testConfig(addr string) redis.Config {
	return redis.Config{
		ConnectionURL:  "redis://" + addr + "/0",
		RetryAttempts:  3,
		RetryInterval:  10 * time.Millisecond,
		ConnectTimeout: time.Second,
	}
}

func TestConnect(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), testConfig(srv.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestConnect_BadURL(t *testing.T) {
	t.Parallel()

	cfg := testConfig("localhost:6379")
	cfg.ConnectionURL = "not-a-url"
	_, err := redis.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, redis.ErrParseConnString)
}

func TestConnect_ServerDown(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := testConfig(addr)
	cfg.ConnectTimeout = 100 * time.Millisecond
	_, err := redis.Connect(context.Background(), cfg)
	assert.ErrorIs(t, err, redis.ErrNotReady)
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	client, err := redis.Connect(context.Background(), testConfig(srv.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	check := redis.Healthcheck(client)
	require.NoError(t, check(context.Background()))

	srv.Close()
	assert.ErrorIs(t, check(context.Background()), redis.ErrHealthcheckFailed)
}
