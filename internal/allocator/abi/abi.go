// Package abi holds the types shared across the dispatcher and both
// back-ends. It exists only to break the import cycle that would
// otherwise result from the back-ends (sfl, mk) and the dispatcher
// (allocator) each needing the same Stats shape: the dispatcher imports
// the back-ends, so the back-ends cannot import the dispatcher's
// package to get at Stats.
package abi

// Stats mirrors allocator_stats_t from the specification.
type Stats struct {
	TotalAllocations  uint64
	TotalFrees        uint64
	CurrentAllocated  uint64
	PeakAllocated     uint64
	FailedAllocations uint64
}
