package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRejectsZeroHeap(t *testing.T) {
	h, err := Create(KindSegregated, 0)
	assert.Nil(t, h)
	assert.ErrorIs(t, err, ErrZeroHeap)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SegregatedFreeList", KindSegregated.String())
	assert.Equal(t, "McKusickKarels", KindMcKusick.String())
}

func testRoundTripForKind(t *testing.T, kind Kind) {
	h, err := Create(kind, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	p := h.Alloc(64)
	require.NotNil(t, p)
	require.Greater(t, h.Stats().CurrentAllocated, uint64(0))

	h.Free(p)
	assert.EqualValues(t, 0, h.Stats().CurrentAllocated)
	assert.Equal(t, h.Stats().TotalAllocations, h.Stats().TotalFrees)
}

func TestRoundTripBothBackends(t *testing.T) {
	testRoundTripForKind(t, KindSegregated)
	testRoundTripForKind(t, KindMcKusick)
}

func TestReallocNilPtrBehavesAsAlloc(t *testing.T) {
	h, err := Create(KindMcKusick, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	p := h.Realloc(nil, 64)
	assert.NotNil(t, p)
	assert.EqualValues(t, 1, h.Stats().TotalAllocations)
}

func TestReallocZeroSizeBehavesAsFree(t *testing.T) {
	h, err := Create(KindSegregated, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	p := h.Alloc(64)
	require.NotNil(t, p)

	out := h.Realloc(p, 0)
	assert.Nil(t, out)
	assert.EqualValues(t, 1, h.Stats().TotalFrees)
}

func TestReallocGrowsIntoFreshBlock(t *testing.T) {
	h, err := Create(KindMcKusick, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	p := h.Alloc(16)
	require.NotNil(t, p)

	q := h.Realloc(p, 128)
	require.NotNil(t, q)
	assert.NotEqual(t, p, q)
	assert.EqualValues(t, 2, h.Stats().TotalAllocations)
	assert.EqualValues(t, 1, h.Stats().TotalFrees)
}

func TestResetStatsZeroesCounters(t *testing.T) {
	h, err := Create(KindSegregated, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	h.Alloc(64)
	require.NotEqual(t, Stats{}, h.Stats())

	h.ResetStats()
	assert.Equal(t, Stats{}, h.Stats())
}

func TestFreeNilIsNoOp(t *testing.T) {
	h, err := Create(KindMcKusick, 1024*1024)
	require.NoError(t, err)
	defer h.Destroy()

	assert.NotPanics(t, func() { h.Free(nil) })
}

func TestAllocZeroReturnsNilForBothBackends(t *testing.T) {
	for _, kind := range []Kind{KindSegregated, KindMcKusick} {
		h, err := Create(kind, 1024*1024)
		require.NoError(t, err)
		assert.Nil(t, h.Alloc(0))
		h.Destroy()
	}
}
