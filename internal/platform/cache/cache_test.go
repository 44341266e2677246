package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExpiresEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	value, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), value)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryDelete(t *testing.T) {
	c := NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Delete(ctx, "a", "b"))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
}

type payload struct {
	Name string `json:"name"`
}

func TestLoaderCachesAndCollapsesLoads(t *testing.T) {
	loader := NewLoader[[]payload](NewMemory(nil), time.Minute, nil)
	ctx := context.Background()

	var calls atomic.Int64
	release := make(chan struct{})
	load := func(context.Context) ([]payload, error) {
		calls.Add(1)
		<-release
		return []payload{{Name: "x"}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := loader.Get(ctx, "rules:u1", load)
			assert.NoError(t, err)
			assert.Equal(t, []payload{{Name: "x"}}, got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	got, err := loader.Get(ctx, "rules:u1", func(context.Context) ([]payload, error) {
		return nil, errors.New("should be cached")
	})
	require.NoError(t, err)
	assert.Equal(t, "x", got[0].Name)
	assert.LessOrEqual(t, calls.Load(), int64(8))
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestLoaderInvalidate(t *testing.T) {
	loader := NewLoader[int](NewMemory(nil), time.Minute, nil)
	ctx := context.Background()

	v, err := loader.Get(ctx, "k", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	require.NoError(t, loader.Invalidate(ctx, "k"))
	v, err = loader.Get(ctx, "k", func(context.Context) (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestLoaderPropagatesLoadErrors(t *testing.T) {
	loader := NewLoader[int](NewMemory(nil), time.Minute, nil)
	boom := errors.New("boom")
	_, err := loader.Get(context.Background(), "k", func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
}
