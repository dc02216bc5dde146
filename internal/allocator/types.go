// Package allocator provides the polymorphic front-end over the two
// back-end memory allocators implemented by sibling packages sfl and mk.
//
// See runtime/malloc.go in the teacher tree for the precedent this
// dispatch style is adapted from: a single entry point that routes to a
// concrete allocator implementation by a small integer tag.
package allocator

import (
	"errors"
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator/abi"
)

// Kind identifies a concrete back-end. It plays the role of the first
// in-memory field of the C union-style dispatcher described by the
// specification: every Handle carries one and every operation switches
// on it.
type Kind int

const (
	// KindSegregated routes to the segregated free-list back-end.
	KindSegregated Kind = iota
	// KindMcKusick routes to the McKusick-Karels page-bucket back-end.
	KindMcKusick
)

func (k Kind) String() string {
	switch k {
	case KindSegregated:
		return "SegregatedFreeList"
	case KindMcKusick:
		return "McKusickKarels"
	default:
		return "Unknown"
	}
}

// ErrZeroHeap is returned by Create when asked to reserve a zero-sized
// heap; no back-end can install even a single size class in no space.
var ErrZeroHeap = errors.New("allocator: heap size must be > 0")

// Stats mirrors allocator_stats_t from the specification. Every back-end
// owns and mutates its own Stats; the dispatcher never touches the
// counters directly. It is an alias of abi.Stats so that back-end
// packages (which cannot import this package without creating a cycle)
// can satisfy Backend by depending only on abi.
type Stats = abi.Stats

// Backend is the narrow interface both back-ends implement. It is the Go
// realization of the "tagged-variant... equivalently a trait/interface
// with two implementors" note in the specification's design notes.
type Backend interface {
	// Alloc returns size writable bytes, or nil on failure.
	Alloc(size uintptr) unsafe.Pointer
	// Free releases a block previously returned by Alloc. A nil ptr is a
	// no-op; an unrecognized ptr is logged and otherwise ignored.
	Free(ptr unsafe.Pointer)
	// Stats returns a snapshot of the back-end's counters.
	Stats() Stats
	// ResetStats zeroes the back-end's counters in place.
	ResetStats()
	// Destroy releases every resource the back-end holds. The back-end
	// must not be used afterwards.
	Destroy()
}
