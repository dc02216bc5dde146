package mk

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

// S3: free then re-allocate the same size reuses the same page and the
// exact slot the freed block occupied, because the scan always finds the
// lowest-indexed free slot.
func TestReuseUsesSamePageAndSlot(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(100)
	require.NotNil(t, p)
	pHdr := (*slotHeader)(unsafe.Add(p, -slotHeaderSize))
	pageID, objIdx := pHdr.PageID, pHdr.ObjectIndex

	a.Free(p)

	q := a.Alloc(100)
	require.NotNil(t, q)
	qHdr := (*slotHeader)(unsafe.Add(q, -slotHeaderSize))

	assert.Equal(t, pageID, qHdr.PageID)
	assert.Equal(t, objIdx, qHdr.ObjectIndex)
}

// S4: once a page's object count is exhausted it moves to the full
// list; freeing one object brings it back to the partial list without
// allocating a new page.
func TestFullPageReturnsToPartialOnFree(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	bucketIdx := bucketIndexFor(16)
	require.GreaterOrEqual(t, bucketIdx, 0)

	first := a.Alloc(16)
	require.NotNil(t, first)
	page := a.pages[((*slotHeader)(unsafe.Add(first, -slotHeaderSize))).PageID]
	numObjects := page.numObjects

	ptrs := []unsafe.Pointer{first}
	for i := uint64(1); i < numObjects; i++ {
		p := a.Alloc(16)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}

	// Page should now be full and off the partial list.
	assert.Nil(t, a.bucketHeads[bucketIdx])
	assert.Same(t, page, a.fullHead)
	pagesBefore := len(a.pages)

	a.Free(ptrs[0])
	assert.Same(t, page, a.bucketHeads[bucketIdx])

	next := a.Alloc(16)
	require.NotNil(t, next)
	assert.Equal(t, pagesBefore, len(a.pages), "must not allocate a new page when the old one has room")

	for _, p := range ptrs[1:] {
		a.Free(p)
	}
	a.Free(next)
}

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

// S5-equivalent: a corrupted slot header is rejected without mutating
// total_frees.
func TestCorruptionIsDetected(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(64)
	require.NotNil(t, p)

	*(*byte)(unsafe.Add(p, -1)) = 0xFF

	a.Free(p)
	assert.EqualValues(t, 0, a.Stats().TotalFrees)
}

func TestEdgeCases(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	assert.Nil(t, a.Alloc(0))
	assert.NotPanics(t, func() { a.Free(nil) })
}

func TestSizeLargerThanLargestBucketFails(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	p := a.Alloc(4096)
	assert.Nil(t, p)
	assert.EqualValues(t, 1, a.Stats().FailedAllocations)
}

// MK page-state invariant: at a quiescent point every page is on exactly
// one list, and list membership matches free_count == 0.
func TestPageStateInvariant(t *testing.T) {
	a := New(1024 * 1024)
	defer a.Destroy()

	var ptrs []unsafe.Pointer
	for i := 0; i < 50; i++ {
		p := a.Alloc(32)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}
	for i := 0; i < 25; i++ {
		a.Free(ptrs[i])
	}

	seen := map[*page]bool{}
	for _, head := range a.bucketHeads {
		for cur := head; cur != nil; cur = cur.next {
			assert.Greater(t, cur.freeCount, uint64(0))
			assert.False(t, seen[cur], "page listed twice")
			seen[cur] = true
		}
	}
	for cur := a.fullHead; cur != nil; cur = cur.next {
		assert.EqualValues(t, 0, cur.freeCount)
		assert.False(t, seen[cur], "page listed twice")
		seen[cur] = true
	}
	assert.Len(t, seen, len(a.pages))
}
