package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAllocator() *Allocator {
	return NewAllocator(
		Range{Start: 9222, Size: 10},
		Range{Start: 5900, Size: 10},
		Range{Start: 99, Size: 10},
	)
}

func TestAllocateLowestFree(t *testing.T) {
	a := testAllocator()

	p1, err := a.Allocate(BandVNC)
	require.NoError(t, err)
	p2, err := a.Allocate(BandVNC)
	require.NoError(t, err)

	assert.Equal(t, 5900, p1)
	assert.Equal(t, 5901, p2)

	// Releasing the lower port makes it the next handed out again.
	a.Release(BandVNC, p1)
	p3, err := a.Allocate(BandVNC)
	require.NoError(t, err)
	assert.Equal(t, 5900, p3)
}

func TestAllocateBandsAreIndependent(t *testing.T) {
	a := testAllocator()

	debug, err := a.Allocate(BandDebug)
	require.NoError(t, err)
	vnc, err := a.Allocate(BandVNC)
	require.NoError(t, err)
	display, err := a.Allocate(BandDisplay)
	require.NoError(t, err)

	assert.Equal(t, 9222, debug)
	assert.Equal(t, 5900, vnc)
	assert.Equal(t, 99, display)
}

func TestAllocateConcurrentDistinct(t *testing.T) {
	a := NewAllocator(
		Range{Start: 9222, Size: 100},
		Range{Start: 5900, Size: 100},
		Range{Start: 99, Size: 100},
	)

	const n = 100
	ports := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			port, err := a.Allocate(BandVNC)
			require.NoError(t, err)
			ports[i] = port
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, port := range ports {
		assert.False(t, seen[port], "port %d allocated twice", port)
		assert.GreaterOrEqual(t, port, 5900)
		assert.Less(t, port, 6000)
		seen[port] = true
	}
}

func TestAllocateExhausted(t *testing.T) {
	a := NewAllocator(
		Range{Start: 9222, Size: 1},
		Range{Start: 5900, Size: 1},
		Range{Start: 99, Size: 1},
	)

	_, err := a.Allocate(BandVNC)
	require.NoError(t, err)

	_, err = a.Allocate(BandVNC)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestReleaseIdempotent(t *testing.T) {
	a := testAllocator()

	port, err := a.Allocate(BandDebug)
	require.NoError(t, err)

	a.Release(BandDebug, port)
	a.Release(BandDebug, port)
	a.Release(BandDebug, 12345) // never reserved
	a.Release(BandDebug, 0)     // zero is a no-op

	assert.False(t, a.Reserved(BandDebug, port))
}

func TestReserveExact(t *testing.T) {
	a := testAllocator()

	require.NoError(t, a.Reserve(BandVNC, 5905))
	assert.True(t, a.Reserved(BandVNC, 5905))

	err := a.Reserve(BandVNC, 5905)
	assert.ErrorIs(t, err, ErrPortConflict)

	// The reserved port is skipped by allocation order.
	for i := 0; i < 5; i++ {
		port, err := a.Allocate(BandVNC)
		require.NoError(t, err)
		assert.NotEqual(t, 5905, port)
	}
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: 5900, Size: 10}
	assert.True(t, r.Contains(5900))
	assert.True(t, r.Contains(5909))
	assert.False(t, r.Contains(5910))
	assert.False(t, r.Contains(5899))
}
