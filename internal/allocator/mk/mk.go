// Package mk implements the McKusick-Karels page-bucket allocator
// described by the specification: fixed-size slab pages, one free-bitmap
// per page, eight bucket size classes, and a separate list for pages
// with no free objects. See spec.md section 4.2.
//
// Pattern credit: the partial/full page split mirrors
// runtime/mcentral.go's nonempty/empty mspan lists — "the partial-list
// head is the fast path; the allocator never scans past pages known to
// be full" is lifted directly from that file's design, generalized from
// garbage-collected spans to explicitly freed slab pages.
//
// Page descriptors (the `page` type below) are ordinary Go heap values
// linked by ordinary Go pointers — nothing unsafe about that list, since
// the garbage collector tracks *page fields normally. The only unsafe
// region is each page's slab data buffer: to let a freed pointer find
// its way back to the page and slot that own it in O(1), the
// specification stores {page, object_index, magic} right before the
// returned payload. Storing a live *page inside that raw []byte would
// hide it from the collector, so this implementation stores a small
// integer page ID (an index into the allocator's page table) instead,
// and resolves it back to a *page on Free. That table is this package's
// "narrow module with well-defined invariants" boundary: nothing outside
// this package ever sees a page ID.
package mk

import (
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator/abi"
	"github.com/sirupsen/logrus"
)

const (
	// PageSize is the fixed slab page size in bytes.
	PageSize = 4096
	// NumBuckets is the number of bucket size classes.
	NumBuckets = 8
	// slotMagic marks a live, uncorrupted slot header.
	slotMagic = uint64(0xBEEFCAFE)
	// slotHeaderSize is sizeof({pageID, objectIndex, magic}), three
	// 8-byte words.
	slotHeaderSize = 24
)

// BucketSizes are the eight bucket size classes.
var BucketSizes = [NumBuckets]uint64{16, 32, 64, 128, 256, 512, 1024, 2048}

// pageDescriptorShape stands in for the specification's "Page"
// descriptor — next pointer, bucket size, bitmap pointer, object counts,
// data pointer — purely so unsafe.Sizeof gives a realistic per-page
// bookkeeping overhead when computing how many slots fit in PageSize.
// The real page type below carries additional Go-only bookkeeping (id,
// bucketIdx) that has no equivalent in the specification's struct and is
// deliberately excluded from this measurement.
type pageDescriptorShape struct {
	next          unsafe.Pointer
	bucketSize    uint64
	freeBitmapPtr unsafe.Pointer
	numObjects    uint64
	freeCount     uint64
	dataPtr       unsafe.Pointer
}

var pageDescriptorSize = uint64(unsafe.Sizeof(pageDescriptorShape{}))

// slotHeader is the metadata stored at the start of every slot:
// {pageID, objectIndex, magic}.
type slotHeader struct {
	PageID      uint64
	ObjectIndex uint64
	Magic       uint64
}

// page is a slab page descriptor. It is never stored inside unsafe
// memory; it is a plain Go value linked into bucketHeads/fullHead by
// ordinary *page fields.
type page struct {
	id         int
	next       *page
	bucketIdx  int
	bucketSize uint64
	slotSize   uint64
	numObjects uint64
	freeCount  uint64
	freeBitmap []byte // bit i set means slot i is free
	data       []byte // numObjects * slotSize bytes
}

func (p *page) slotBase(objIdx uint64) unsafe.Pointer {
	return unsafe.Pointer(&p.data[objIdx*p.slotSize])
}

func bitSet(bitmap []byte, i uint64) bool {
	return bitmap[i/8]&(1<<(i%8)) != 0
}

func bitClear(bitmap []byte, i uint64) {
	bitmap[i/8] &^= 1 << (i % 8)
}

func bitMark(bitmap []byte, i uint64) {
	bitmap[i/8] |= 1 << (i % 8)
}

// findFreeSlot returns the lowest-indexed free slot in [0, numObjects),
// or -1 if none is free.
func findFreeSlot(bitmap []byte, numObjects uint64) int64 {
	for i := uint64(0); i < numObjects; i++ {
		if bitSet(bitmap, i) {
			return int64(i)
		}
	}
	return -1
}

// alignSize rounds size up to the 8-byte boundary. It mirrors
// mk_align_size from original_source/mem-allocators/src/mckusick_karels.c,
// which exists there but is never called from the allocation path —
// bucket routing runs on the raw requested size, with alignment implicit
// from slot positioning plus the slot header width. Kept unused here for
// the same reason spec.md section 9 asks implementers to preserve that
// behavior rather than "fix" it.
func alignSize(size uint64) uint64 {
	return (size + 7) &^ 7
}

// bucketIndexFor returns the smallest bucket index whose size is >=
// size, or -1 if size exceeds the largest bucket.
func bucketIndexFor(size uint64) int {
	for i, sz := range BucketSizes {
		if size <= sz {
			return i
		}
	}
	return -1
}

// Allocator is the McKusick-Karels back-end. It satisfies
// allocator.Backend.
type Allocator struct {
	heapSize uintptr // recorded, not carved from; pages come from the host on demand

	bucketHeads [NumBuckets]*page // partial-page lists, one per bucket
	fullHead    *page             // pages with free_count == 0

	pages []*page // id -> page, for slotHeader.PageID resolution

	stats abi.Stats
	log   *logrus.Entry
}

// New records heapSize and returns an allocator with no pages yet
// created; pages are allocated lazily on first use of each bucket.
func New(heapSize uintptr) *Allocator {
	return &Allocator{
		heapSize: heapSize,
		log:      logrus.WithField("allocator", "mk"),
	}
}

// newPage creates and registers a slab page for the given bucket, sized
// per spec.md section 3's "number of slots per page" formula.
func (a *Allocator) newPage(bucketIdx int) *page {
	bucketSize := BucketSizes[bucketIdx]
	slotSize := bucketSize + slotHeaderSize

	numObjects := (PageSize - pageDescriptorSize) / slotSize
	if numObjects == 0 {
		numObjects = 1
	}

	bitmapSize := (numObjects + 7) / 8
	p := &page{
		id:         len(a.pages),
		bucketIdx:  bucketIdx,
		bucketSize: bucketSize,
		slotSize:   slotSize,
		numObjects: numObjects,
		freeCount:  numObjects,
		freeBitmap: make([]byte, bitmapSize),
		data:       make([]byte, numObjects*slotSize),
	}
	for i := range p.freeBitmap {
		p.freeBitmap[i] = 0xFF
	}

	a.pages = append(a.pages, p)
	a.log.WithFields(logrus.Fields{
		"bucket_size": bucketSize,
		"num_objects": numObjects,
	}).Debug("new slab page")
	return p
}

// unlinkPage removes p from the singly-linked list whose head is *head.
func unlinkPage(head **page, p *page) {
	if *head == p {
		*head = p.next
		return
	}
	for cur := *head; cur != nil; cur = cur.next {
		if cur.next == p {
			cur.next = p.next
			return
		}
	}
}

// Alloc implements spec.md section 4.2's allocation algorithm.
func (a *Allocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	bucketIdx := bucketIndexFor(uint64(size))
	if bucketIdx < 0 {
		a.stats.FailedAllocations++
		return nil
	}

	p := a.bucketHeads[bucketIdx]
	if p == nil || p.freeCount == 0 {
		p = a.newPage(bucketIdx)
		p.next = a.bucketHeads[bucketIdx]
		a.bucketHeads[bucketIdx] = p
	}

	objIdx := findFreeSlot(p.freeBitmap, p.numObjects)
	if objIdx < 0 {
		a.stats.FailedAllocations++
		return nil
	}

	bitClear(p.freeBitmap, uint64(objIdx))
	p.freeCount--

	slot := p.slotBase(uint64(objIdx))
	hdr := (*slotHeader)(slot)
	hdr.PageID = uint64(p.id)
	hdr.ObjectIndex = uint64(objIdx)
	hdr.Magic = slotMagic

	a.stats.TotalAllocations++
	a.stats.CurrentAllocated += p.bucketSize
	if a.stats.CurrentAllocated > a.stats.PeakAllocated {
		a.stats.PeakAllocated = a.stats.CurrentAllocated
	}

	if p.freeCount == 0 {
		unlinkPage(&a.bucketHeads[bucketIdx], p)
		p.next = a.fullHead
		a.fullHead = p
	}

	return unsafe.Add(slot, slotHeaderSize)
}

// Free implements spec.md section 4.2's free algorithm.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	hdr := (*slotHeader)(unsafe.Add(ptr, -slotHeaderSize))
	if hdr.Magic != slotMagic {
		a.log.WithFields(logrus.Fields{
			"expected_magic": slotMagic,
			"got_magic":      hdr.Magic,
		}).Error("corrupted slot header on free; ignoring")
		return
	}

	p := a.pages[hdr.PageID]
	objIdx := hdr.ObjectIndex

	if p.freeCount == 0 {
		unlinkPage(&a.fullHead, p)
		p.next = a.bucketHeads[p.bucketIdx]
		a.bucketHeads[p.bucketIdx] = p
	}

	bitMark(p.freeBitmap, objIdx)
	p.freeCount++

	a.stats.TotalFrees++
	a.stats.CurrentAllocated -= p.bucketSize
}

// Stats returns a snapshot of the back-end's counters.
func (a *Allocator) Stats() abi.Stats {
	return a.stats
}

// ResetStats zeroes the back-end's counters in place.
func (a *Allocator) ResetStats() {
	a.stats = abi.Stats{}
}

// Destroy releases every page this allocator created. Live blocks
// outstanding at Destroy dangle.
func (a *Allocator) Destroy() {
	a.pages = nil
	for i := range a.bucketHeads {
		a.bucketHeads[i] = nil
	}
	a.fullHead = nil
}
