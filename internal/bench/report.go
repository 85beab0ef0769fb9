// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package bench

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ProgressTo returns w if it's a terminal, else nil; progress lines only
// clutter a redirected report.
func ProgressTo(w io.Writer) io.Writer {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return w
	}
	return nil
}

// WriteTable prints a line per run of both times and the faster path.
func (res *Result) WriteTable(w io.Writer) {
	fmt.Fprint(w, "\n--- BENCHMARK RESULTS (nanoseconds) ---\n")
	fmt.Fprintf(w, "%-15s | %-13s | %-15s | %s\n",
		"Run", "DMA Time", "memcpy Time", "Faster")
	fmt.Fprint(w, "----------------|---------------|-----------------|----------\n")
	for i := range res.Runs {
		r := &res.Runs[i]
		fmt.Fprintf(w, "%-15d | %-13d | %-15d | %v",
			r.N, r.DMA.Nanoseconds(), r.Memcpy.Nanoseconds(), r.Faster())
		if !r.MemcpyOK || !r.DMAOK {
			fmt.Fprint(w, " (FAILED)")
		}
		fmt.Fprintln(w)
	}
}

// WriteSummary prints the statistics of each path.
func (res *Result) WriteSummary(w io.Writer) {
	fmt.Fprintf(w, "\n%d bytes, %d runs\n", res.Length, len(res.Runs))
	fmt.Fprintf(w, "%-8s %10s %10s %12s %12s %12s %7s\n",
		"path", "min", "max", "mean", "p50", "p90", "failed")
	for _, p := range []Path{DMA, Memcpy} {
		s := res.Stats(p)
		fmt.Fprintf(w, "%-8v %10d %10d %12.1f %12.1f %12.1f %7d\n",
			p, s.Min, s.Max, s.Mean, s.P50, s.P90, s.Failed)
	}
	dma, cpu := res.Stats(DMA), res.Stats(Memcpy)
	if dma.Mean > 0 && cpu.Mean > 0 {
		if dma.Mean < cpu.Mean {
			fmt.Fprintf(w, "DMA is %.2fx faster on average\n",
				cpu.Mean/dma.Mean)
		} else {
			fmt.Fprintf(w, "memcpy is %.2fx faster on average\n",
				dma.Mean/cpu.Mean)
		}
	}
}
