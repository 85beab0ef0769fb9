// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package bench_test

import (
	"bytes"
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/goes-dmabench/internal/bench"
	"github.com/platinasystems/goes-dmabench/internal/dma"
	"github.com/platinasystems/goes-dmabench/internal/dmamem"
	"github.com/platinasystems/goes-dmabench/internal/mbox"
	"github.com/platinasystems/goes-dmabench/internal/physmem"
	"github.com/platinasystems/goes-dmabench/internal/vc"
	"github.com/platinasystems/goes-dmabench/internal/vctest"
)

type line struct{ values []bool }

func (l *line) Set(v bool) error {
	l.values = append(l.values, v)
	return nil
}

// elsewhere redirects the engine to another block.
type elsewhere struct {
	dma.Buffer
	bus vc.Bus
}

func (e elsewhere) Addr() vc.Bus { return e.bus }

type fixture struct {
	engine *vctest.Engine
	h      *bench.Harness
	alloc  func(int) *dmamem.Mem
}

func newFixture(t *testing.T, n int) *fixture {
	fw := vctest.NewFirmware(t, 1<<20)
	pm, err := physmem.Open(fw.Path)
	require.NoError(t, err)
	mb := mbox.New(fw)
	t.Cleanup(func() {
		assert.Zero(t, fw.Allocated())
		pm.Close()
	})
	engine := vctest.NewEngine(t, fw, 5)
	c, err := dma.New(engine.Regs, 5)
	require.NoError(t, err)
	c.ResetDelay = 0

	alloc := func(n int) *dmamem.Mem {
		m, err := dmamem.Alloc(mb, pm, n, dmamem.DefaultFlags)
		require.NoError(t, err)
		t.Cleanup(func() { m.Close() })
		return m
	}
	src := alloc(n)
	rand.New(rand.NewSource(1)).Read(src.Bytes())
	return &fixture{
		engine: engine,
		alloc:  alloc,
		h: &bench.Harness{
			Config:  bench.Config{Runs: 3},
			Channel: c,
			CB:      alloc(dma.ControlBlockSize),
			Src:     src,
			Dst:     alloc(n),
			Length:  n,
		},
	}
}

func TestHarness(t *testing.T) {
	f := newFixture(t, 10000)
	memcpyLine, dmaLine := new(line), new(line)
	f.h.MemcpyLine = memcpyLine
	f.h.DMALine = dmaLine
	progress := new(bytes.Buffer)
	f.h.Progress = progress

	res, err := f.h.Main(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Runs, 3)
	for i, r := range res.Runs {
		assert.Equal(t, i+1, r.N)
		assert.True(t, r.MemcpyOK)
		assert.True(t, r.DMAOK)
		assert.Positive(t, r.DMA)
	}
	assert.Equal(t, f.h.Src.Bytes(), f.h.Dst.Bytes())
	assert.Equal(t, int64(3), f.engine.Transfers.Load())
	assert.Equal(t, []bool{true, false, true, false, true, false},
		memcpyLine.values)
	assert.Equal(t, memcpyLine.values, dmaLine.values)
	assert.Equal(t, 3, strings.Count(progress.String(), "Finished run"))

	for _, p := range []bench.Path{bench.Memcpy, bench.DMA} {
		s := res.Stats(p)
		assert.Equal(t, int64(3), s.Count, p.String())
		assert.Zero(t, s.Failed)
		assert.LessOrEqual(t, s.Min, s.Max)
	}
	assert.Zero(t, res.Failed())
}

func TestHarnessDefaults(t *testing.T) {
	f := newFixture(t, 64)
	f.h.Runs = 0
	res, err := f.h.Main(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Runs, bench.DefaultRuns)
}

func TestHarnessMismatch(t *testing.T) {
	f := newFixture(t, 4096)
	other := f.alloc(4096)
	f.h.Dst = elsewhere{f.h.Dst, other.Bus}

	res, err := f.h.Main(context.Background())
	require.NoError(t, err, "mismatch isn't fatal")
	require.Len(t, res.Runs, 3)
	for _, r := range res.Runs {
		assert.True(t, r.MemcpyOK)
		assert.False(t, r.DMAOK)
	}
	assert.Equal(t, int64(3), res.Stats(bench.DMA).Failed)
	assert.Zero(t, res.Stats(bench.Memcpy).Failed)
	assert.Equal(t, int64(3), res.Failed())
	assert.Equal(t, f.h.Src.Bytes(), other.Bytes())
}

func TestHarnessTimeout(t *testing.T) {
	f := newFixture(t, 4096)
	f.engine.Hang.Store(true)
	f.h.Timeout = 10 * time.Millisecond
	f.h.Channel.Spin = 16

	res, err := f.h.Main(context.Background())
	assert.ErrorIs(t, err, dma.ErrTimeout)
	assert.Empty(t, res.Runs)
	assert.Equal(t, dma.Idle, f.h.Channel.State())
}

func TestHarnessCanceled(t *testing.T) {
	f := newFixture(t, 4096)
	f.h.Pause = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(),
		50*time.Millisecond)
	defer cancel()
	res, err := f.h.Main(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, res.Runs, 1)
}

func TestHarnessLength(t *testing.T) {
	f := newFixture(t, 4096)
	f.h.Length = 4097
	_, err := f.h.Main(context.Background())
	assert.ErrorIs(t, err, dma.ErrLength)
	f.h.Length = 0
	_, err = f.h.Main(context.Background())
	assert.ErrorIs(t, err, dma.ErrLength)
	assert.Zero(t, f.engine.Transfers.Load())
}

func TestReport(t *testing.T) {
	res := &bench.Result{
		Length: 4096,
		Runs: []bench.Run{
			{N: 1, Memcpy: 900, DMA: 1200, MemcpyOK: true, DMAOK: true},
			{N: 2, Memcpy: 900, DMA: 600, MemcpyOK: true, DMAOK: false},
		},
		Registry: metrics.NewRegistry(),
	}
	assert.Equal(t, bench.Memcpy, res.Runs[0].Faster())
	assert.Equal(t, bench.DMA, res.Runs[1].Faster())

	w := new(bytes.Buffer)
	res.WriteTable(w)
	lines := strings.Split(strings.TrimSpace(w.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "1               | 1200          | 900             | memcpy",
		lines[3])
	assert.Equal(t, "2               | 600           | 900             | DMA (FAILED)",
		lines[4])

	w.Reset()
	res.WriteSummary(w)
	assert.Contains(t, w.String(), "4096 bytes, 2 runs")
	assert.NotContains(t, w.String(), "faster on average")
}

func TestProgressTo(t *testing.T) {
	assert.Nil(t, bench.ProgressTo(new(bytes.Buffer)))
}
