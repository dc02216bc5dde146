package bench

import (
	"fmt"
	"io"
)

// CSVHeader is the fixed header row spec.md section 6 mandates.
const CSVHeader = "Allocator,Benchmark,Time_us,Operations,Ops_per_sec"

// WriteCSVHeader writes the CSV header row to w.
//
// Rows are hand-formatted with fmt.Fprintf rather than encoding/csv,
// mirroring original_source/mem-allocators/bench/benchmark.c's
// print_result_csv/fprintf calls: the row shape is fixed, none of the
// fields ever need quoting, and no CSV library appears anywhere in the
// retrieval pack (see DESIGN.md).
func WriteCSVHeader(w io.Writer) error {
	_, err := fmt.Fprintln(w, CSVHeader)
	return err
}

// WriteCSVRow writes one Result as a CSV data row to w.
func WriteCSVRow(w io.Writer, r Result) error {
	_, err := fmt.Fprintf(w, "%s,%s,%.2f,%d,%.2f\n",
		r.AllocatorName, r.BenchmarkName, r.TimeMicros, r.Operations, r.OpsPerSec)
	return err
}
