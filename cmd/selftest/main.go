// Command selftest is the specification's "unit-test harness" external
// interface: a standalone binary printing one PASS/FAIL line per test
// and exiting 0 iff every test passed. It is a direct port of
// original_source/mem-allocators/tests/test_allocators.c, kept as a
// separate binary from the package-level go test suite because spec.md
// section 6 describes it as an independently invocable interface, not a
// `go test` run.
package main

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator"
)

const testHeapSize = 1024 * 1024 // 1 MiB, per test_allocators.c

var (
	testsPassed int
	testsFailed int
)

func reportPass(name string) {
	fmt.Printf("Running test: %s... PASS\n", name)
	testsPassed++
}

func reportFail(name, msg string) {
	fmt.Printf("Running test: %s... FAIL: %s\n", name, msg)
	testsFailed++
}

func writePattern(ptr unsafe.Pointer, n int, b byte) {
	buf := unsafe.Slice((*byte)(ptr), n)
	for i := range buf {
		buf[i] = b
	}
}

func testBasicAllocFree(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	ptr := h.Alloc(100)
	if ptr == nil {
		reportFail(name, "failed to allocate memory")
		return
	}
	writePattern(ptr, 100, 0xAA)
	h.Free(ptr)
	reportPass(name)
}

func testMultipleAllocs(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	ptrs := make([]unsafe.Pointer, 10)
	for i := 0; i < 10; i++ {
		size := 50 + i*10
		ptrs[i] = h.Alloc(uintptr(size))
		if ptrs[i] == nil {
			reportFail(name, "failed to allocate memory")
			return
		}
		writePattern(ptrs[i], size, byte(i))
	}
	for i := 0; i < 10; i++ {
		h.Free(ptrs[i])
	}
	reportPass(name)
}

func testVariedSizes(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	sizes := []uintptr{8, 16, 32, 64, 128, 256, 512, 1024}
	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, sz := range sizes {
		ptrs[i] = h.Alloc(sz)
		if ptrs[i] == nil {
			reportFail(name, "failed to allocate memory")
			return
		}
	}
	for _, p := range ptrs {
		h.Free(p)
	}
	reportPass(name)
}

func testMemoryReuse(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	ptr1 := h.Alloc(100)
	if ptr1 == nil {
		reportFail(name, "failed to allocate memory")
		return
	}
	h.Free(ptr1)

	ptr2 := h.Alloc(100)
	if ptr2 == nil {
		reportFail(name, "failed to reuse memory")
		return
	}
	h.Free(ptr2)
	reportPass(name)
}

func testAllocPattern(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	for i := 0; i < 5; i++ {
		ptr := h.Alloc(200)
		if ptr == nil {
			reportFail(name, "failed to allocate in pattern")
			return
		}
		writePattern(ptr, 200, byte(i))
		h.Free(ptr)
	}
	reportPass(name)
}

func testEdgeCases(kind allocator.Kind, name string) {
	h, err := allocator.Create(kind, testHeapSize)
	if err != nil {
		reportFail(name, "failed to create allocator")
		return
	}
	defer h.Destroy()

	if ptr := h.Alloc(0); ptr != nil {
		reportFail(name, "allocating 0 bytes should return nil")
		return
	}
	h.Free(nil) // must not crash
	reportPass(name)
}

func runSuite(kind allocator.Kind, label string) {
	fmt.Printf("--- %s Allocator Tests ---\n", label)
	testBasicAllocFree(kind, label+": Basic alloc/free")
	testMultipleAllocs(kind, label+": Multiple allocations")
	testVariedSizes(kind, label+": Varied sizes")
	testMemoryReuse(kind, label+": Memory reuse")
	testAllocPattern(kind, label+": Allocation patterns")
	testEdgeCases(kind, label+": Edge cases")
}

func main() {
	fmt.Println("=== Memory Allocator Unit Tests ===")
	fmt.Println()

	runSuite(allocator.KindSegregated, "Segregated Free-List")
	fmt.Println()
	runSuite(allocator.KindMcKusick, "McKusick-Karels")

	fmt.Println()
	fmt.Println("=== Test Results ===")
	fmt.Printf("Passed: %d\n", testsPassed)
	fmt.Printf("Failed: %d\n", testsFailed)
	fmt.Printf("Total:  %d\n", testsPassed+testsFailed)

	if testsFailed > 0 {
		os.Exit(1)
	}
}
