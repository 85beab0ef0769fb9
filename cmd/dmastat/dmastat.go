// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dmastat

import (
	"fmt"
	"io"
	"os"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"

	"github.com/platinasystems/goes-dmabench/cmd"
	"github.com/platinasystems/goes-dmabench/internal/dma"
	"github.com/platinasystems/goes-dmabench/internal/physmem"
	"github.com/platinasystems/goes-dmabench/internal/soc"
	"github.com/platinasystems/goes-dmabench/lang"
)

type Command struct {
	// Memory device and kernel files, the package defaults if empty.
	Mem   string
	Fdt   string
	Iomem string
	// If set, stands in for the mapped DMA controller.
	Regs   []byte
	Stdout io.Writer
}

func (*Command) String() string { return "dmastat" }

func (*Command) Usage() string {
	return "dmastat [-a] [-channel N] [-base ADDRESS] [-profile FILE]"
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "print DMA channel registers",
	}
}

func (*Command) Man() lang.Alt {
	return lang.Alt{
		lang.EnUS: `
DESCRIPTION
	Print the control, status, and debug registers of a DMA channel
	along with the control block that it last loaded.
	  -a to print every channel enabled by the firmware
	  -channel N, default from the SoC profile
	  -base ADDRESS of the peripherals, default from the SoC profile`,
	}
}

func (*Command) Kind() cmd.Kind { return cmd.Privileged }

func (c *Command) Main(args ...string) error {
	flag, args := flags.New(args, "-a")
	parm, args := parms.New(args, "-channel", "-base", "-profile")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	p, err := soc.FromParms(parm, c.Fdt, c.Iomem)
	if err != nil {
		return err
	}
	regs := c.Regs
	if regs == nil {
		if os.Geteuid() != 0 {
			return fmt.Errorf("must be run as root")
		}
		pm, err := physmem.Open(c.Mem)
		if err != nil {
			return err
		}
		defer pm.Close()
		r, err := pm.MapPhys(p.DMABase(), dma.Len)
		if err != nil {
			return err
		}
		defer pm.Unmap(r)
		regs = r.Bytes()
	}
	w := io.Writer(os.Stdout)
	if c.Stdout != nil {
		w = c.Stdout
	}
	channels := []int{p.Channel}
	if flag.ByName["-a"] {
		channels = channels[:0]
		for i := 0; i < dma.NChannels; i++ {
			channels = append(channels, i)
		}
	}
	for _, i := range channels {
		ch, err := dma.New(regs, i)
		if err != nil {
			return err
		}
		if flag.ByName["-a"] && !ch.Enabled() {
			continue
		}
		fmt.Fprintln(w, ch.Dump())
	}
	return nil
}
