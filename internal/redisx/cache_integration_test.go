//go:build integration

package redisx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestCacheAndDedup_Integration(t *testing.T) {
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Terminate(ctx)) })

	addr, err := c.PortEndpoint(ctx, "6379/tcp", "")
	require.NoError(t, err)
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })

	cache := NewCategoryCache(rdb)
	_, ok, err := cache.GetCategories(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetCategories(ctx, []string{"books", "home"}))
	got, ok, err := cache.GetCategories(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"books", "home"}, got)

	ttl, err := rdb.TTL(ctx, KeyCategories).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, TTLCategories/2)

	require.NoError(t, cache.InvalidateCategories(ctx))
	_, ok, err = cache.GetCategories(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	dedup := NewDedupStore(rdb, "reconciler")
	seen, err := dedup.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, dedup.Mark(ctx, "evt-1"))
	seen, err = dedup.Seen(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)
}
