// Package sfl implements the segregated free-list allocator described by
// the specification: one contiguous arena, eight size-class free lists,
// and a single "large" list holding every region not currently parked in
// a sized list. See spec.md section 4.1.
//
// Pattern credit: the size-class table and linear classification scan
// are adapted from runtime/msize.go's sizeToClass (scaled down from ~70
// Go runtime size classes to the specification's 8). The sized/large
// split of free regions plays the same structural role as
// runtime/mcentral.go's nonempty/empty span lists, generalized from
// "spans with any free object" to "regions of exactly one size" versus
// "everything else".
//
// Every intrusive list pointer in this package is a byte offset into the
// arena, not a Go pointer: the arena is a plain []byte, and storing a
// live heap pointer inside its bytes would hide it from the garbage
// collector. unsafe.Pointer is only ever materialized at the moment a
// region header needs to be read or written, via unsafe.Add from the
// arena's base address, and is never retained past that statement.
package sfl

import (
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator/abi"
	"github.com/sirupsen/logrus"
)

// SizeClasses are the eight reference sizes a carved region may be
// parked at. Exported for callers that want to reason about class
// boundaries without duplicating the table.
var SizeClasses = [NumSizeClasses]uint64{16, 32, 64, 128, 256, 512, 1024, 2048}

const (
	// NumSizeClasses is the number of segregated size classes.
	NumSizeClasses = 8
	// headerSize is sizeof({size, magic}), two 8-byte words.
	headerSize = 16
	// blockMagic marks a live, uncorrupted allocated block.
	blockMagic = uint64(0xDEADBEEF)
	// alignTo is the allocator's fixed alignment boundary.
	alignTo = 8
	// noOffset is the sentinel "end of list" / "no region" value. It is
	// unreachable as a real offset because no arena is ever that large.
	noOffset = ^uint64(0)
)

// blockHeader is the metadata stored at the start of every live,
// returned region: {size, magic}.
type blockHeader struct {
	Size  uint64
	Magic uint64
}

// freeRegion is the metadata stored at the start of every region
// currently owned by a free list: {next, size}. next is an arena offset,
// not a pointer — see the package doc comment.
type freeRegion struct {
	Next uint64
	Size uint64
}

// Allocator is the segregated free-list back-end. It satisfies
// allocator.Backend.
type Allocator struct {
	arena []byte
	base  unsafe.Pointer

	sizedHead [NumSizeClasses]uint64 // arena offset of list head, or noOffset
	largeHead uint64                 // arena offset of list head, or noOffset

	stats abi.Stats
	log   *logrus.Entry
}

// New reserves a heapSize-byte arena and installs it as a single free
// region on the large list, mirroring segregated_freelist_create.
func New(heapSize uintptr) *Allocator {
	a := &Allocator{
		arena:     make([]byte, heapSize),
		largeHead: noOffset,
		log:       logrus.WithField("allocator", "sfl"),
	}
	for i := range a.sizedHead {
		a.sizedHead[i] = noOffset
	}
	a.base = unsafe.Pointer(&a.arena[0])

	whole := (*freeRegion)(a.base)
	whole.Next = noOffset
	whole.Size = uint64(heapSize)
	a.largeHead = 0

	a.log.WithField("heap_size", heapSize).Debug("arena reserved")
	return a
}

// regionAt returns the freeRegion header stored at the given arena
// offset.
func (a *Allocator) regionAt(off uint64) *freeRegion {
	return (*freeRegion)(unsafe.Add(a.base, off))
}

// headerAt returns the blockHeader stored at the given arena offset.
func (a *Allocator) headerAt(off uint64) *blockHeader {
	return (*blockHeader)(unsafe.Add(a.base, off))
}

// offsetOf converts a client-facing pointer (pointing just past a
// header) back to the arena offset of that header. The subtraction is
// performed entirely in uintptr space between two pointers into the same
// backing array, which is the documented, supported use of
// unsafe.Pointer arithmetic for this pattern.
func (a *Allocator) offsetOf(ptr unsafe.Pointer) uint64 {
	return uint64(uintptr(ptr) - uintptr(a.base))
}

func alignUp(n uint64) uint64 {
	return (n + alignTo - 1) &^ (alignTo - 1)
}

// classOf returns the smallest size-class index whose size is >= total,
// or -1 if total exceeds the largest class.
func classOf(total uint64) int {
	for i, sz := range SizeClasses {
		if total <= sz {
			return i
		}
	}
	return -1
}

// unlinkHead removes and returns the offset at the head of the list
// whose head is *head, or (0, false) if the list is empty.
func (a *Allocator) unlinkHead(head *uint64) (uint64, bool) {
	if *head == noOffset {
		return 0, false
	}
	off := *head
	*head = a.regionAt(off).Next
	return off, true
}

// pushHead links off onto the front of the list whose head is *head.
func (a *Allocator) pushHead(head *uint64, off uint64, size uint64) {
	r := a.regionAt(off)
	r.Next = *head
	r.Size = size
	*head = off
}

// findFirstFit walks the list whose head is *head looking for a region
// of size >= want, unlinks it, and returns its offset and size. Returns
// (0, 0, false) if no region fits.
func (a *Allocator) findFirstFit(head *uint64, want uint64) (off uint64, size uint64, ok bool) {
	prev := head
	cur := *head
	for cur != noOffset {
		r := a.regionAt(cur)
		if r.Size >= want {
			*prev = r.Next
			return cur, r.Size, true
		}
		prev = &r.Next
		cur = r.Next
	}
	return 0, 0, false
}

// Alloc implements spec.md section 4.1's allocation algorithm.
func (a *Allocator) Alloc(size uintptr) unsafe.Pointer {
	if size == 0 {
		return nil
	}

	total := alignUp(uint64(size) + headerSize)
	classIdx := classOf(total)

	var foundOff uint64
	var found bool

	switch {
	case classIdx >= 0:
		if off, ok := a.unlinkHead(&a.sizedHead[classIdx]); ok {
			foundOff, found = off, true
			break
		}
		// No sized-list hit: carve SIZE_CLASSES[classIdx] bytes off the
		// large list, even though that may exceed the aligned request.
		classWidth := SizeClasses[classIdx]
		if off, regionSize, ok := a.findFirstFit(&a.largeHead, classWidth); ok {
			remaining := regionSize - classWidth
			if remaining >= SizeClasses[0] {
				remOff := off + classWidth
				a.pushHead(&a.largeHead, remOff, remaining)
			}
			foundOff, found = off, true
		}
	default:
		if off, regionSize, ok := a.findFirstFit(&a.largeHead, total); ok {
			remaining := regionSize - total
			if remaining >= SizeClasses[0] {
				remOff := off + total
				a.pushHead(&a.largeHead, remOff, remaining)
			}
			foundOff, found = off, true
		}
	}

	if !found {
		a.stats.FailedAllocations++
		return nil
	}

	hdr := a.headerAt(foundOff)
	hdr.Size = total
	hdr.Magic = blockMagic

	a.stats.TotalAllocations++
	a.stats.CurrentAllocated += total
	if a.stats.CurrentAllocated > a.stats.PeakAllocated {
		a.stats.PeakAllocated = a.stats.CurrentAllocated
	}

	return unsafe.Add(a.base, foundOff+headerSize)
}

// Free implements spec.md section 4.1's free algorithm.
func (a *Allocator) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	headerOff := a.offsetOf(ptr) - headerSize
	hdr := a.headerAt(headerOff)

	if hdr.Magic != blockMagic {
		a.log.WithFields(logrus.Fields{
			"offset":         headerOff,
			"expected_magic": blockMagic,
			"got_magic":      hdr.Magic,
		}).Error("corrupted block header on free; ignoring")
		return
	}

	total := hdr.Size
	a.stats.TotalFrees++
	a.stats.CurrentAllocated -= total

	classIdx := classOf(total)
	if classIdx >= 0 && total == SizeClasses[classIdx] {
		a.pushHead(&a.sizedHead[classIdx], headerOff, total)
	} else {
		a.pushHead(&a.largeHead, headerOff, total)
	}
}

// Stats returns a snapshot of the back-end's counters.
func (a *Allocator) Stats() abi.Stats {
	return a.stats
}

// ResetStats zeroes the back-end's counters in place.
func (a *Allocator) ResetStats() {
	a.stats = abi.Stats{}
}

// Destroy releases the arena. Live blocks outstanding at Destroy dangle.
func (a *Allocator) Destroy() {
	a.arena = nil
	a.base = nil
}
