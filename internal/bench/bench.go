// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package bench times a CPU copy against a DMA transfer of the same
// payload between the same two firmware allocated buffers.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/platinasystems/log"
	"github.com/rcrowley/go-metrics"

	"github.com/platinasystems/goes-dmabench/internal/dma"
	"github.com/platinasystems/goes-dmabench/internal/pulse"
)

const (
	DefaultRuns  = 10
	DefaultPause = 50 * time.Millisecond
)

// ErrMismatch is logged and counted, never returned; a bad copy is a
// result, not a failure.
var ErrMismatch = errors.New("destination differs from source")

type Path int

const (
	Memcpy Path = iota
	DMA
)

func (p Path) String() string {
	if p == DMA {
		return "DMA"
	}
	return "memcpy"
}

type Config struct {
	Runs int
	// Between runs, so that pulses are distinct on the analyzer.
	Pause time.Duration
	// Of each transfer; zero waits for as long as the engine takes.
	Timeout time.Duration
}

// Harness runs the benchmark. The buffers are from dmamem; Src holds the
// payload, Length bytes of which are copied.
type Harness struct {
	Config
	Channel *dma.Channel
	CB      dma.Buffer
	Src     dma.Buffer
	Dst     dma.Buffer
	Length  int

	// Pulsed for the duration of each copy.
	MemcpyLine pulse.Line
	DMALine    pulse.Line

	// Progress, if non-nil, receives a line per run.
	Progress io.Writer
}

type Run struct {
	N      int
	Memcpy time.Duration
	DMA    time.Duration
	// Verification of each path.
	MemcpyOK bool
	DMAOK    bool
}

// Faster names the path that took less time; a tie goes to memcpy.
func (r *Run) Faster() Path {
	if r.DMA < r.Memcpy {
		return DMA
	}
	return Memcpy
}

// Stats summarizes the timings of one path, in nanoseconds.
type Stats struct {
	Count    int64
	Min, Max int64
	Mean     float64
	P50, P90 float64
	Failed   int64
}

type Result struct {
	Length int
	Runs   []Run
	// Histograms "memcpy.ns", "dma.ns" and counters "memcpy.mismatch",
	// "dma.mismatch".
	Registry metrics.Registry
}

func (h *Harness) validate() error {
	switch {
	case h.Channel == nil:
		return errors.New("no channel")
	case h.CB == nil || h.Src == nil || h.Dst == nil:
		return errors.New("missing buffer")
	case h.Length <= 0:
		return fmt.Errorf("%w: %d", dma.ErrLength, h.Length)
	case h.Length > len(h.Src.Bytes()) || h.Length > len(h.Dst.Bytes()):
		return fmt.Errorf("%w: %d exceeds src %d or dst %d", dma.ErrLength,
			h.Length, len(h.Src.Bytes()), len(h.Dst.Bytes()))
	}
	return nil
}

// Main performs the configured runs. It returns early only for a fault of
// the engine or ctx; verification failures are in the result.
func (h *Harness) Main(ctx context.Context) (*Result, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}
	if h.Runs <= 0 {
		h.Runs = DefaultRuns
	}
	if h.MemcpyLine == nil {
		h.MemcpyLine = pulse.Nop{}
	}
	if h.DMALine == nil {
		h.DMALine = pulse.Nop{}
	}
	res := &Result{
		Length:   h.Length,
		Runs:     make([]Run, 0, h.Runs),
		Registry: metrics.NewRegistry(),
	}
	for i := 1; i <= h.Runs; i++ {
		r, err := h.run(ctx, i, res.Registry)
		if err != nil {
			return res, fmt.Errorf("run %d: %w", i, err)
		}
		res.Runs = append(res.Runs, r)
		if h.Progress != nil {
			fmt.Fprintf(h.Progress,
				"Finished run %d/%d (memcpy: %d ns, dma: %d ns)\n",
				i, h.Runs, r.Memcpy.Nanoseconds(),
				r.DMA.Nanoseconds())
		}
		if i < h.Runs && h.Pause > 0 {
			t := time.NewTimer(h.Pause)
			select {
			case <-ctx.Done():
				t.Stop()
				return res, ctx.Err()
			case <-t.C:
			}
		}
	}
	return res, nil
}

func (h *Harness) run(ctx context.Context, i int, reg metrics.Registry) (Run, error) {
	r := Run{N: i}
	src := h.Src.Bytes()[:h.Length]
	dst := h.Dst.Bytes()[:h.Length]

	clear(dst)
	err := pulse.Around(h.MemcpyLine, func() error {
		start := time.Now()
		copy(dst, src)
		r.Memcpy = time.Since(start)
		return nil
	})
	if err != nil {
		return r, err
	}
	r.MemcpyOK = h.verify(i, Memcpy, reg)
	record(reg, Memcpy, r.Memcpy)

	clear(dst)
	_, err = dma.BuildDescriptor(h.CB.Bytes(), h.Dst.Addr(), h.Src.Addr(),
		h.Length)
	if err != nil {
		return r, err
	}
	tctx, cancel := ctx, context.CancelFunc(func() {})
	if h.Timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, h.Timeout)
	}
	defer cancel()
	err = pulse.Around(h.DMALine, func() error {
		start := time.Now()
		err := h.Channel.Run(tctx, h.CB.Addr())
		r.DMA = time.Since(start)
		return err
	})
	if err != nil {
		return r, err
	}
	r.DMAOK = h.verify(i, DMA, reg)
	record(reg, DMA, r.DMA)
	return r, nil
}

func (h *Harness) verify(i int, p Path, reg metrics.Registry) bool {
	src := h.Src.Bytes()[:h.Length]
	dst := h.Dst.Bytes()[:h.Length]
	if bytes.Equal(src, dst) {
		return true
	}
	at := 0
	for at < len(src) && src[at] == dst[at] {
		at++
	}
	log.Printf("warn", "run %d: %v: %v at byte %d", i, p, ErrMismatch, at)
	metrics.GetOrRegisterCounter(key(p, "mismatch"), reg).Inc(1)
	return false
}

func key(p Path, what string) string {
	if p == DMA {
		return "dma." + what
	}
	return "memcpy." + what
}

func record(reg metrics.Registry, p Path, d time.Duration) {
	metrics.GetOrRegisterHistogram(key(p, "ns"), reg,
		metrics.NewUniformSample(1028)).Update(d.Nanoseconds())
}

// Stats of the given path.
func (res *Result) Stats(p Path) Stats {
	hist := metrics.GetOrRegisterHistogram(key(p, "ns"), res.Registry,
		metrics.NewUniformSample(1028)).Snapshot()
	ps := hist.Percentiles([]float64{0.5, 0.9})
	return Stats{
		Count:  hist.Count(),
		Min:    hist.Min(),
		Max:    hist.Max(),
		Mean:   hist.Mean(),
		P50:    ps[0],
		P90:    ps[1],
		Failed: metrics.GetOrRegisterCounter(key(p, "mismatch"), res.Registry).Count(),
	}
}

// Failed returns the number of failed verifications of either path.
func (res *Result) Failed() int64 {
	return res.Stats(Memcpy).Failed + res.Stats(DMA).Failed
}
