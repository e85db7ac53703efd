//go:build integration

package redis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"innsearch/internal/platform/config"
	"innsearch/internal/platform/redis"
	"innsearch/pkg/testutil/containers"
)

func TestClientConnects(t *testing.T) {
	rc := containers.GetManager().GetRedis(t)
	client, err := redis.New(context.Background(), config.RedisConfig{URL: rc.Addr})
	require.NoError(t, err)
	defer client.Close()
	require.NoError(t, client.Health(context.Background()))
}
