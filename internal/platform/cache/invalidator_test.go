package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestInvalidateRemovesTenantKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	inv := NewInvalidator(client, nil)
	ctx := context.Background()

	require.NoError(t, mr.Set(Key(7, "stock"), "cached"))
	require.NoError(t, mr.Set(Key(8, "stock"), "cached"))

	inv.Invalidate(ctx, 7, "stock")

	require.False(t, mr.Exists(Key(7, "stock")))
	require.True(t, mr.Exists(Key(8, "stock")))
}

func TestInvalidateNilClientIsNoop(t *testing.T) {
	var inv *Invalidator
	inv.Invalidate(context.Background(), 1, "stock")
}
