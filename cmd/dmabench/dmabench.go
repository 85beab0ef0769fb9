// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dmabench provides a command that compares CPU memcpy against the
// DMA engine by copying a payload file between two firmware allocated
// buffers.
package dmabench

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"

	"github.com/platinasystems/goes-dmabench/cmd"
	"github.com/platinasystems/goes-dmabench/internal/bench"
	"github.com/platinasystems/goes-dmabench/internal/dma"
	"github.com/platinasystems/goes-dmabench/internal/dmamem"
	"github.com/platinasystems/goes-dmabench/internal/mbox"
	"github.com/platinasystems/goes-dmabench/internal/physmem"
	"github.com/platinasystems/goes-dmabench/internal/publish"
	"github.com/platinasystems/goes-dmabench/internal/pulse"
	"github.com/platinasystems/goes-dmabench/internal/soc"
	"github.com/platinasystems/goes-dmabench/lang"
)

const (
	DefaultSrc       = "dma_src.txt"
	DefaultDst       = "dma_dst.txt"
	DefaultMemcpyPin = 17
	DefaultDMAPin    = 18
)

type Command struct {
	// Devices and kernel files, the package defaults if empty.
	Mem   string
	Mbox  string
	Fdt   string
	Iomem string

	// If set, these stand in for the mailbox device and the mapped
	// DMA controller.
	Transport mbox.Transport
	Regs      []byte

	// Opens a pulse line; pulse.NewPin if nil.
	NewLine func(int) (pulse.Line, error)
	Geteuid func() int
	Stdout  io.Writer
}

func (*Command) String() string { return "dmabench" }

func (*Command) Usage() string {
	return `dmabench [-n RUNS] [-src FILE] [-dst FILE] [-profile FILE]
	[-base ADDRESS] [-channel N] [-timeout DURATION] [-pause DURATION]
	[-memcpy-pin N] [-dma-pin N] [-no-gpio] [-redis ADDRESS] [-q]`
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "compare memcpy with the DMA engine",
	}
}

func (*Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Copy the contents of the source file between two buffers allocated
	from the VideoCore firmware, first with the CPU then with a DMA
	channel, RUNS times. Each copy is verified and timed; then the times
	of each run, the faster path, and a summary are printed. The
	destination buffer, as last written by the engine, is saved to the
	destination file for comparison with the source.

	GPIO lines are pulsed high for the duration of each memcpy and DMA
	transfer for measurement with a logic analyzer.

	Must be run as root.

OPTIONS
	-n RUNS		number of runs, default 10
	-src FILE	payload, default dma_src.txt
	-dst FILE	verification sink, default dma_dst.txt
	-profile FILE	YAML SoC profile, default from the device tree
	-base ADDRESS	peripheral base, overriding the profile
	-channel N	DMA channel, default 5
	-timeout DURATION
			abort a transfer taking longer, default never
	-pause DURATION	between runs, default 50ms
	-memcpy-pin N	default 17
	-dma-pin N	default 18
	-no-gpio	don't pulse GPIO lines
	-redis ADDRESS	publish results to this redis server
	-q		no per run progress

EXAMPLES
	dmabench -n 100 -timeout 1s
	dmabench -profile /etc/goes/bcm2837.yaml -no-gpio`,
	}
}

func (*Command) Kind() cmd.Kind { return cmd.Privileged }

type options struct {
	runs      int
	src, dst  string
	timeout   time.Duration
	pause     time.Duration
	memcpyPin int
	dmaPin    int
	noGpio    bool
	quiet     bool
	redis     string
	profile   soc.Profile
}

func (c *Command) options(args []string) (*options, error) {
	flag, args := flags.New(args, "-no-gpio", "-q")
	parm, args := parms.New(args, "-n", "-src", "-dst", "-profile",
		"-base", "-channel", "-timeout", "-pause", "-memcpy-pin",
		"-dma-pin", "-redis")
	if len(args) > 0 {
		return nil, fmt.Errorf("%v: unexpected", args)
	}
	opt := &options{
		runs:      bench.DefaultRuns,
		src:       DefaultSrc,
		dst:       DefaultDst,
		pause:     bench.DefaultPause,
		memcpyPin: DefaultMemcpyPin,
		dmaPin:    DefaultDMAPin,
		noGpio:    flag.ByName["-no-gpio"],
		quiet:     flag.ByName["-q"],
		redis:     parm.ByName["-redis"],
	}
	if s := parm.ByName["-src"]; len(s) > 0 {
		opt.src = s
	}
	if s := parm.ByName["-dst"]; len(s) > 0 {
		opt.dst = s
	}
	for _, x := range []struct {
		name string
		p    *int
	}{
		{"-n", &opt.runs},
		{"-memcpy-pin", &opt.memcpyPin},
		{"-dma-pin", &opt.dmaPin},
	} {
		if s := parm.ByName[x.name]; len(s) > 0 {
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 {
				return nil, fmt.Errorf("%s: %q invalid", x.name, s)
			}
			*x.p = i
		}
	}
	if opt.runs == 0 {
		return nil, fmt.Errorf("-n: must be positive")
	}
	for _, x := range []struct {
		name string
		p    *time.Duration
	}{
		{"-timeout", &opt.timeout},
		{"-pause", &opt.pause},
	} {
		if s := parm.ByName[x.name]; len(s) > 0 {
			d, err := time.ParseDuration(s)
			if err != nil || d < 0 {
				return nil, fmt.Errorf("%s: %q invalid", x.name, s)
			}
			*x.p = d
		}
	}
	var err error
	if opt.profile, err = soc.FromParms(parm, c.Fdt, c.Iomem); err != nil {
		return nil, err
	}
	return opt, nil
}

func (c *Command) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *Command) line(noGpio bool, num int) (pulse.Line, error) {
	if noGpio {
		return pulse.Nop{}, nil
	}
	if c.NewLine != nil {
		return c.NewLine(num)
	}
	p, err := pulse.NewPin(num)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Main acquires, in order, the GPIO lines, the memory device, the mailbox,
// the DMA registers, and the control block, source, and destination
// buffers. Each is released in reverse order on return.
func (c *Command) Main(args ...string) (err error) {
	geteuid := c.Geteuid
	if geteuid == nil {
		geteuid = os.Geteuid
	}
	if geteuid() != 0 {
		return fmt.Errorf("must be run as root")
	}
	opt, err := c.options(args)
	if err != nil {
		return err
	}
	payload, err := os.ReadFile(opt.src)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("source: %s: empty", opt.src)
	}
	w := c.stdout()

	memcpyLine, err := c.line(opt.noGpio, opt.memcpyPin)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	defer releaseLine(memcpyLine)
	dmaLine, err := c.line(opt.noGpio, opt.dmaPin)
	if err != nil {
		return fmt.Errorf("gpio: %w", err)
	}
	defer releaseLine(dmaLine)
	if !opt.noGpio {
		fmt.Fprintf(w, "Initialized GPIO %d (memcpy) and GPIO %d (DMA).\n",
			opt.memcpyPin, opt.dmaPin)
	}
	fmt.Fprint(w, "--- Starting DMA vs. memcpy ---\n")
	fmt.Fprintf(w, "Source file: '%s' (Size: %d bytes)\n", opt.src,
		len(payload))
	fmt.Fprintln(w, opt.profile)

	pm, err := physmem.Open(c.Mem)
	if err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	defer pm.Close()
	pm.AliasMask = opt.profile.AliasMask

	var mb *mbox.Mailbox
	if c.Transport != nil {
		mb = mbox.New(c.Transport)
	} else if mb, err = mbox.Open(c.Mbox); err != nil {
		return fmt.Errorf("mailbox: %w", err)
	}
	defer mb.Close()

	regs := c.Regs
	if regs == nil {
		r, err := pm.MapPhys(opt.profile.DMABase(), dma.Len)
		if err != nil {
			return fmt.Errorf("dma registers: %w", err)
		}
		defer pm.Unmap(r)
		regs = r.Bytes()
	}
	ch, err := dma.New(regs, opt.profile.Channel)
	if err != nil {
		return fmt.Errorf("dma: %w", err)
	}
	if !ch.Enabled() {
		log.Print("warn", ch, ": not enabled by firmware")
	}

	alloc := func(what string, n int) (*dmamem.Mem, error) {
		m, err := dmamem.Alloc(mb, pm, n, dmamem.DefaultFlags)
		if err != nil {
			return nil, fmt.Errorf("%s buffer: %w", what, err)
		}
		return m, nil
	}
	cb, err := alloc("control block", dma.ControlBlockSize)
	if err != nil {
		return err
	}
	defer release(cb, &err)
	src, err := alloc("source", len(payload))
	if err != nil {
		return err
	}
	defer release(src, &err)
	dst, err := alloc("destination", len(payload))
	if err != nil {
		return err
	}
	defer release(dst, &err)

	fmt.Fprintf(w, "Reading '%s' (%d bytes) into RAM...\n", opt.src,
		len(payload))
	copy(src.Bytes(), payload)
	fmt.Fprint(w, "Read complete. Starting benchmark...\n\n")

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := &bench.Harness{
		Config: bench.Config{
			Runs:    opt.runs,
			Pause:   opt.pause,
			Timeout: opt.timeout,
		},
		Channel:    ch,
		CB:         cb,
		Src:        src,
		Dst:        dst,
		Length:     len(payload),
		MemcpyLine: memcpyLine,
		DMALine:    dmaLine,
	}
	if !opt.quiet {
		if c.Stdout != nil {
			h.Progress = c.Stdout
		} else {
			h.Progress = bench.ProgressTo(os.Stdout)
		}
	}
	res, err := h.Main(ctx)
	if err != nil {
		log.Print("err", ch.Dump())
		return fmt.Errorf("benchmark: %w", err)
	}
	res.WriteTable(w)
	res.WriteSummary(w)

	fmt.Fprintf(w, "\nWriting result to '%s'...\n", opt.dst)
	if err = os.WriteFile(opt.dst, dst.Bytes(), 0644); err != nil {
		return fmt.Errorf("destination: %w", err)
	}
	fmt.Fprint(w, "Write complete. Use 'md5sum' to compare the two files.\n")

	if len(opt.redis) > 0 {
		p, err := publish.Dial(opt.redis)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		defer p.Close()
		id, err := p.Publish(opt.profile.Name, res)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		fmt.Fprintln(w, "Published", p.Key(id))
	}
	if n := res.Failed(); n > 0 {
		log.Print("warn", n, " copies failed verification")
	}
	return nil
}

// release m, reporting its failure only if nothing else failed first.
func release(m *dmamem.Mem, err *error) {
	if rerr := m.Close(); rerr != nil {
		log.Print("err", m, ": ", rerr)
		if *err == nil {
			*err = fmt.Errorf("release: %w", rerr)
		}
	}
}

func releaseLine(l pulse.Line) {
	if err := pulse.Release(l); err != nil {
		log.Print("warn", l, ": ", err)
	}
}
