package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	p := newTestPool(t, &mockFactory{}, WithPoolID("orders"), WithMaxConnections(1))

	require.NoError(t, reg.Register("orders", p))
	assert.ErrorIs(t, reg.Register("orders", p), ErrPoolExists)

	got, err := reg.Get("orders")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrPoolNotFound)

	assert.Equal(t, []string{"orders"}, reg.IDs())
	assert.Equal(t, 1, reg.Stats()["orders"].Available)

	require.NoError(t, reg.Remove("orders"))
	assert.ErrorIs(t, reg.Remove("orders"), ErrPoolNotFound)

	// 移除不会关闭连接池
	_, err = p.Acquire(context.Background())
	assert.NoError(t, err)
}

// 并发调用 GetOrCreate 时只创建一个连接池
func TestRegistry_GetOrCreate(t *testing.T) {
	reg := NewRegistry()
	var creations int32

	create := func() (Pool, error) {
		atomic.AddInt32(&creations, 1)
		return newTestPool(t, &mockFactory{}, WithPoolID("shared"), WithWarmup(false)), nil
	}

	var wg sync.WaitGroup
	results := make([]Pool, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := reg.GetOrCreate("shared", create)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&creations))
	for _, p := range results {
		assert.Same(t, results[0], p)
	}

	failing := func() (Pool, error) { return nil, errors.New("boom") }
	_, err := reg.GetOrCreate("other", failing)
	assert.Error(t, err)
	_, err = reg.Get("other")
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestRegistry_Shutdown(t *testing.T) {
	reg := NewRegistry()
	fa, fb := &mockFactory{}, &mockFactory{}
	a := newTestPool(t, fa, WithPoolID("a"), WithMaxConnections(2))
	b := newTestPool(t, fb, WithPoolID("b"), WithMaxConnections(1))
	require.NoError(t, reg.Register("a", a))
	require.NoError(t, reg.Register("b", b))

	// 已经关闭的连接池不算错误
	require.NoError(t, b.Shutdown(context.Background()))

	require.NoError(t, reg.Shutdown(context.Background()))
	assert.Empty(t, reg.IDs())
	for _, c := range append(fa.created(), fb.created()...) {
		assert.True(t, c.IsClosed())
	}
}
