package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"iou_ledger/internal/fault"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Set(ctx, "short", "v", 20*time.Millisecond))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return err != nil
	}, time.Second, 5*time.Millisecond)

	_, err = c.Get(ctx, "short")
	assert.ErrorIs(t, err, fault.ErrNotFound)

	require.NoError(t, c.Del(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestMemoryCache_GetDelConsumesOnce(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, "challenge", "alice", time.Minute))

	const n = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		hits int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.GetDel(ctx, "challenge"); err == nil {
				mu.Lock()
				hits++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, hits)
}

func TestMemoryCache_List(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	vals, err := c.LRange(ctx, "to: bob")
	require.NoError(t, err)
	assert.Empty(t, vals)

	require.NoError(t, c.RPush(ctx, "to: bob", "a"))
	require.NoError(t, c.RPush(ctx, "to: bob", "b", "c"))

	vals, err = c.LRange(ctx, "to: bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, vals)

	require.NoError(t, c.Set(ctx, "plain", "x", 0))
	assert.ErrorIs(t, c.RPush(ctx, "plain", "y"), fault.ErrStoreIO)
}

func TestMemoryCache_DrainKeepsConcurrentPushes(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		drawn []string
	)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.RPush(ctx, "to: bob", "m"))
		}()
		go func() {
			defer wg.Done()
			vals, err := c.Drain(ctx, "to: bob")
			assert.NoError(t, err)
			mu.Lock()
			drawn = append(drawn, vals...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	rest, err := c.Drain(ctx, "to: bob")
	require.NoError(t, err)
	assert.Len(t, append(drawn, rest...), 50)

	rest, err = c.Drain(ctx, "to: bob")
	require.NoError(t, err)
	assert.Empty(t, rest)
}
