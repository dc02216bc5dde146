// Package bench implements the benchmark harness described by spec.md
// section 6: four workloads (Sequential, Random, Mixed, Stress) run
// against a fresh allocator.Handle per benchmark, each producing one CSV
// row.
//
// The workload bodies are a direct port of
// original_source/mem-allocators/bench/benchmark.c's benchmark_sequential/
// benchmark_random/benchmark_mixed/benchmark_stress — same loop
// structure, same fixed RNG seed, same operation counts — translated
// from raw pointer arrays to unsafe.Pointer slices.
package bench

import (
	"math/rand"
	"time"
	"unsafe"

	"github.com/andro-kes/kp-os-20/internal/allocator"
	"github.com/sirupsen/logrus"
)

// DefaultHeapSize is the 10 MiB heap every benchmark runs against, per
// spec.md section 6.
const DefaultHeapSize = 10 * 1024 * 1024

// MaxStressAllocs bounds the Stress benchmark's allocation array, per
// spec.md section 6.
const MaxStressAllocs = 10000

// randomSeed is the fixed seed the Random benchmark uses for
// reproducibility, per spec.md section 6.
const randomSeed = 42

// Result is one row of the benchmark CSV, mirroring
// benchmark_result_t in the original source.
type Result struct {
	AllocatorName string
	BenchmarkName string
	TimeMicros    float64
	Operations    uint64
	OpsPerSec     float64
}

func makeResult(allocatorName, benchName string, elapsed time.Duration, ops uint64) Result {
	us := float64(elapsed.Microseconds())
	var opsPerSec float64
	if us > 0 {
		opsPerSec = float64(ops) / (us / 1_000_000.0)
	}
	return Result{
		AllocatorName: allocatorName,
		BenchmarkName: benchName,
		TimeMicros:    us,
		Operations:    ops,
		OpsPerSec:     opsPerSec,
	}
}

// Sequential repeats numOps/2 times: allocate 64 bytes, free it
// immediately if the allocation succeeded.
func Sequential(h *allocator.Handle, allocatorName string, numOps uint64) Result {
	n := numOps / 2
	start := time.Now()
	for i := uint64(0); i < n; i++ {
		if p := h.Alloc(64); p != nil {
			h.Free(p)
		}
	}
	return makeResult(allocatorName, "Sequential", time.Since(start), n)
}

// Random runs numOps iterations; each iteration picks at random between
// allocating a block of 16 + rand()%1024 bytes (only if fewer than 1000
// blocks are currently live) and freeing a random live block via
// swap-with-last removal. Remaining live blocks are freed once the loop
// ends.
func Random(h *allocator.Handle, allocatorName string, numOps uint64) Result {
	const maxLive = 1000
	live := make([]unsafe.Pointer, 0, maxLive)
	rng := rand.New(rand.NewSource(randomSeed))

	start := time.Now()
	for i := uint64(0); i < numOps; i++ {
		action := rng.Intn(2)
		switch {
		case action == 0 && len(live) < maxLive:
			size := uintptr(16 + rng.Intn(1024))
			if p := h.Alloc(size); p != nil {
				live = append(live, p)
			}
		case len(live) > 0:
			idx := rng.Intn(len(live))
			h.Free(live[idx])
			last := len(live) - 1
			live[idx] = live[last]
			live = live[:last]
		}
	}
	for _, p := range live {
		h.Free(p)
	}
	return makeResult(allocatorName, "Random", time.Since(start), numOps)
}

// Mixed allocates 500 32-byte blocks, frees the even-indexed ones,
// re-allocates 128-byte blocks into those slots, then frees everything.
// Always reports 2000 operations, per spec.md section 6.
func Mixed(h *allocator.Handle, allocatorName string, _ uint64) Result {
	const n = 500
	ptrs := make([]unsafe.Pointer, n)

	start := time.Now()
	for i := 0; i < n; i++ {
		ptrs[i] = h.Alloc(32)
	}
	for i := 0; i < n; i += 2 {
		h.Free(ptrs[i])
		ptrs[i] = nil
	}
	for i := 0; i < n; i += 2 {
		ptrs[i] = h.Alloc(128)
	}
	for i := 0; i < n; i++ {
		if ptrs[i] != nil {
			h.Free(ptrs[i])
		}
	}
	return makeResult(allocatorName, "Mixed", time.Since(start), 2000)
}

// Stress allocates up to MaxStressAllocs 256-byte blocks (capped at
// numOps) until the first failure, then frees every successful
// allocation.
func Stress(h *allocator.Handle, allocatorName string, numOps uint64) Result {
	limit := numOps
	if limit > MaxStressAllocs {
		limit = MaxStressAllocs
	}
	ptrs := make([]unsafe.Pointer, 0, limit)

	start := time.Now()
	for uint64(len(ptrs)) < limit {
		p := h.Alloc(256)
		if p == nil {
			break
		}
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		h.Free(p)
	}
	return makeResult(allocatorName, "Stress", time.Since(start), uint64(len(ptrs))*2)
}

// Workload is a single named benchmark function.
type Workload struct {
	Name string
	Run  func(h *allocator.Handle, allocatorName string, numOps uint64) Result
}

// Workloads lists every benchmark in the fixed order spec.md section 6
// presents them.
var Workloads = []Workload{
	{Name: "Sequential", Run: Sequential},
	{Name: "Random", Run: Random},
	{Name: "Mixed", Run: Mixed},
	{Name: "Stress", Run: Stress},
}

// RunAll runs every workload for kind on a fresh handle each time, per
// spec.md section 6 ("run on a fresh handle per benchmark").
func RunAll(kind allocator.Kind, allocatorName string, numOps uint64, log *logrus.Entry) ([]Result, error) {
	results := make([]Result, 0, len(Workloads))
	for _, w := range Workloads {
		h, err := allocator.Create(kind, DefaultHeapSize)
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"allocator": allocatorName,
			"benchmark": w.Name,
		}).Info("running benchmark")
		r := w.Run(h, allocatorName, numOps)
		h.Destroy()
		results = append(results, r)
	}
	return results, nil
}
