package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/portfolioviz/pkg/logger"
)

type payload struct {
	Values []float64 `json:"values"`
}

func TestMemory_GetSet(t *testing.T) {
	c := NewMemory(logger.NewNop())
	ctx := context.Background()

	var got payload
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "k", payload{Values: []float64{1, 2}}, time.Minute))

	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []float64{1, 2}, got.Values)

	require.NoError(t, c.Delete(ctx, "k"))
	found, _ = c.Get(ctx, "k", &got)
	assert.False(t, found)
}

func TestMemory_Expiry(t *testing.T) {
	now := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(logger.NewNop())
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", payload{}, time.Second))
	require.NoError(t, c.Set(ctx, "long", payload{}, time.Hour))

	now = now.Add(time.Minute)

	var got payload
	found, err := c.Get(ctx, "short", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired entries are misses")

	assert.Equal(t, 1, c.CleanStale())
	assert.Equal(t, 1, c.Len())
}

func TestMemory_UnmarshalError(t *testing.T) {
	c := NewMemory(logger.NewNop())
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", "not an object", time.Minute))

	var got payload
	_, err := c.Get(ctx, "k", &got)
	assert.Error(t, err)
}
