// Command bench is the benchmark harness CLI described by spec.md
// section 6: it runs the four workloads in internal/bench against one or
// both allocator back-ends and emits a CSV report.
package main

import (
	"fmt"
	"os"

	"github.com/andro-kes/kp-os-20/internal/allocator"
	"github.com/andro-kes/kp-os-20/internal/bench"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	allocatorFlag string
	numOpsFlag    uint64
	outputFlag    string
	log           = logrus.WithField("component", "bench")
)

// newRootCmd mirrors the structure of dsmmcken-dh-cli's newRootCmd: a
// single cobra.Command carrying every flag, with SilenceUsage/
// SilenceErrors off so that an unknown flag or a missing flag value
// prints usage to stderr and the process exits 1 — matching spec.md
// section 6's CLI contract exactly (cobra's default behavior already
// does this; no flag.Usage overrides are needed).
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Memory allocator benchmark harness",
		Long:  "bench runs Sequential, Random, Mixed, and Stress workloads against the segregated free-list and McKusick-Karels allocators and reports a CSV of timing results.",
		Args:  cobra.NoArgs,
		RunE:  runBench,
	}

	cmd.Flags().StringVarP(&allocatorFlag, "allocator", "a", "all",
		"Allocator type: segregated, mckusick, all")
	cmd.Flags().Uint64VarP(&numOpsFlag, "num-ops", "n", 10000,
		"Number of operations per benchmark")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "",
		"Output CSV file (default: stdout)")

	return cmd
}

type allocatorSelection struct {
	kind allocator.Kind
	name string
}

func resolveSelections(allocatorType string) ([]allocatorSelection, error) {
	switch allocatorType {
	case "segregated":
		return []allocatorSelection{{allocator.KindSegregated, "SegregatedFreeList"}}, nil
	case "mckusick":
		return []allocatorSelection{{allocator.KindMcKusick, "McKusickKarels"}}, nil
	case "all":
		return []allocatorSelection{
			{allocator.KindSegregated, "SegregatedFreeList"},
			{allocator.KindMcKusick, "McKusickKarels"},
		}, nil
	default:
		return nil, fmt.Errorf("unknown allocator type: %s", allocatorType)
	}
}

func runBench(cmd *cobra.Command, args []string) error {
	selections, err := resolveSelections(allocatorFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	closeOut := func() {}
	if outputFlag != "" {
		f, err := os.Create(outputFlag)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		out = f
		closeOut = func() { f.Close() }
	}
	defer closeOut()

	fmt.Fprintf(cmd.ErrOrStderr(), "=== Memory Allocator Benchmark ===\n")
	fmt.Fprintf(cmd.ErrOrStderr(), "Operations per benchmark: %d\n\n", numOpsFlag)

	if err := bench.WriteCSVHeader(out); err != nil {
		return err
	}

	for _, sel := range selections {
		log.WithField("allocator", sel.name).Info("running benchmarks")
		results, err := bench.RunAll(sel.kind, sel.name, numOpsFlag, log)
		if err != nil {
			return fmt.Errorf("failed to create allocator %s: %w", sel.name, err)
		}
		for _, r := range results {
			if err := bench.WriteCSVRow(out, r); err != nil {
				return err
			}
		}
	}

	if outputFlag != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nResults written to: %s\n", outputFlag)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "\nBenchmark complete!\n")
	return nil
}
