package allocator

import (
	"fmt"
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator/mk"
	"github.com/andro-kes/kp-os-20/internal/allocator/sfl"
)

// Handle is the opaque per-allocator state returned by Create. Its first
// field, Kind, identifies the concrete back-end the way the
// specification's allocator_t union tags itself; every other method
// forwards to backend.
//
// A Handle is not safe for concurrent use: the specification explicitly
// scopes out thread safety (see spec.md section 5). Callers sharing a
// Handle across goroutines must serialize externally.
type Handle struct {
	Kind    Kind
	backend Backend
}

// Create reserves heapSize bytes from the host and installs the
// requested back-end. It returns ErrZeroHeap if heapSize is 0 and an
// error if kind is not a known Kind; no other failure mode exists on top
// of Go's allocator (make never returns an error), unlike the C original,
// where host malloc could fail and allocator_create would return NULL.
func Create(kind Kind, heapSize uintptr) (*Handle, error) {
	if heapSize == 0 {
		return nil, ErrZeroHeap
	}

	var backend Backend
	switch kind {
	case KindSegregated:
		backend = sfl.New(heapSize)
	case KindMcKusick:
		backend = mk.New(heapSize)
	default:
		return nil, fmt.Errorf("allocator: unknown kind %d", int(kind))
	}

	return &Handle{Kind: kind, backend: backend}, nil
}

// Destroy releases the back-end's resources. Live blocks outstanding at
// Destroy dangle; the specification places no obligation on the caller
// to free them first.
func (h *Handle) Destroy() {
	if h == nil || h.backend == nil {
		return
	}
	h.backend.Destroy()
	h.backend = nil
}

// Alloc returns a pointer to size writable bytes, or nil on failure.
func (h *Handle) Alloc(size uintptr) unsafe.Pointer {
	if h == nil || h.backend == nil {
		return nil
	}
	return h.backend.Alloc(size)
}

// Free releases a block returned by Alloc. A nil ptr is a no-op.
func (h *Handle) Free(ptr unsafe.Pointer) {
	if h == nil || h.backend == nil || ptr == nil {
		return
	}
	h.backend.Free(ptr)
}

// Realloc implements the specification's three-way contract:
//   - ptr == nil behaves as Alloc(newSize).
//   - newSize == 0 behaves as Free(ptr) and returns nil.
//   - otherwise a fresh block is allocated and the old one released;
//     contents are NOT copied (see spec.md section 1 and section 4.3 —
//     the block header carries no usable payload size to copy from, a
//     documented limitation carried over unchanged from the original).
func (h *Handle) Realloc(ptr unsafe.Pointer, newSize uintptr) unsafe.Pointer {
	if h == nil || h.backend == nil {
		return nil
	}
	if ptr == nil {
		return h.backend.Alloc(newSize)
	}
	if newSize == 0 {
		h.backend.Free(ptr)
		return nil
	}
	newPtr := h.backend.Alloc(newSize)
	if newPtr != nil {
		h.backend.Free(ptr)
	}
	return newPtr
}

// Stats returns a snapshot of the active back-end's counters. Unlike the
// C original's allocator_get_stats stub (which zeroes the output
// unconditionally — see spec.md section 4.3 and section 9), this routes
// through to the real back-end counters.
func (h *Handle) Stats() Stats {
	if h == nil || h.backend == nil {
		return Stats{}
	}
	return h.backend.Stats()
}

// ResetStats zeroes the active back-end's counters.
func (h *Handle) ResetStats() {
	if h == nil || h.backend == nil {
		return
	}
	h.backend.ResetStats()
}
