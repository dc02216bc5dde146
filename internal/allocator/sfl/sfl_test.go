package sfl

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeByte(ptr unsafe.Pointer, off int, b byte) {
	*(*byte)(unsafe.Add(ptr, off)) = b
}

func readByte(ptr unsafe.Pointer, off int) byte {
	return *(*byte)(unsafe.Add(ptr, off))
}

// S1: 5000 alloc/free cycles of 64 bytes leave current_allocated at 0.
func TestSequentialAllocFreeReturnsToZero(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	for i := 0; i < 5000; i++ {
		p := a.Alloc(64)
		require.NotNil(t, p, "allocation %d should not fail", i)
		a.Free(p)
	}

	st := a.Stats()
	assert.EqualValues(t, 5000, st.TotalAllocations)
	assert.EqualValues(t, 5000, st.TotalFrees)
	assert.EqualValues(t, 0, st.CurrentAllocated)
	assert.EqualValues(t, 0, st.FailedAllocations)
}

// S2: varied sizes, write-then-read-back, blocks never overlap.
func TestVariedSizesRoundTrip(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	sizes := []uintptr{8, 16, 32, 64, 128, 256, 512, 1024}
	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, sz := range sizes {
		p := a.Alloc(sz)
		require.NotNil(t, p)
		ptrs[i] = p
		writeByte(p, 0, byte(i))
	}
	for i, p := range ptrs {
		assert.Equal(t, byte(i), readByte(p, 0))
	}
	for _, p := range ptrs {
		a.Free(p)
	}
}

// Reuse: free then re-allocate the same size class recovers the same
// current_allocated total.
func TestReuseAfterFree(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(48)
	require.NotNil(t, p)
	afterFirst := a.Stats().CurrentAllocated

	a.Free(p)
	assert.EqualValues(t, 0, a.Stats().CurrentAllocated)

	q := a.Alloc(48)
	require.NotNil(t, q)
	assert.Equal(t, afterFirst, a.Stats().CurrentAllocated)
}

// S5: corrupting the byte immediately before a returned pointer causes
// Free to reject the block without touching total_frees.
func TestCorruptionIsDetected(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(64)
	require.NotNil(t, p)

	// The magic word sits in the 8 bytes immediately before the payload.
	*(*byte)(unsafe.Add(p, -1)) = 0xFF

	a.Free(p)
	assert.EqualValues(t, 0, a.Stats().TotalFrees)
}

// Edge cases: alloc(0) is nil, free(nil) is a no-op.
func TestEdgeCases(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	assert.Nil(t, a.Alloc(0))
	assert.NotPanics(t, func() { a.Free(nil) })
}

// Failure monotonicity: an allocation that fails must not corrupt state
// enough to break a subsequent allocation that previously succeeded.
func TestFailureDoesNotCorruptState(t *testing.T) {
	a := New(4096)
	defer a.Destroy()

	p := a.Alloc(64)
	require.NotNil(t, p)
	a.Free(p)

	// Request something far larger than the arena; must fail cleanly.
	huge := a.Alloc(1 << 30)
	assert.Nil(t, huge)
	assert.EqualValues(t, 1, a.Stats().FailedAllocations)

	// The previously-successful size must still succeed.
	q := a.Alloc(64)
	assert.NotNil(t, q)
}

func TestAllocLargerThanBiggestClassSucceeds(t *testing.T) {
	// New() itself does not validate heapSize; the dispatcher does
	// (allocator.Create returns ErrZeroHeap). A request larger than the
	// biggest size class always takes the large-list path.
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(4000)
	require.NotNil(t, p)
	a.Free(p)
}
