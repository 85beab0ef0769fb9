// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package soc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const DefaultIomem = "/proc/iomem"

// Resource is a line of /proc/iomem.
type Resource struct {
	What       string
	Start, End uint64
}

func (r Resource) String() string {
	return fmt.Sprintf("%x-%x : %s", r.Start, r.End, r.What)
}

// ReadIomem parses lines of the form "START-END : WHAT", at any depth of
// indentation. Start and end are zero unless read by root.
func ReadIomem(r io.Reader) ([]Resource, error) {
	var res []Resource
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 2)
		if len(fields) != 2 {
			continue
		}
		var x Resource
		n, _ := fmt.Sscanf(strings.TrimSpace(fields[0]), "%x-%x",
			&x.Start, &x.End)
		if n != 2 {
			continue
		}
		x.What = strings.TrimSpace(fields[1])
		res = append(res, x)
	}
	return res, scanner.Err()
}

// FromIomem derives the peripheral base from the kernel's claim of the DMA
// controller's registers, named by the node of its bus address.
func FromIomem(path string, p Profile) (Profile, error) {
	if len(path) == 0 {
		path = DefaultIomem
	}
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()
	res, err := ReadIomem(f)
	if err != nil {
		return p, fmt.Errorf("%s: %w", path, err)
	}
	node := fmt.Sprintf("@%x", busPeripherals+p.DMAOffset)
	for _, r := range res {
		if !strings.HasSuffix(r.What, node) ||
			!strings.Contains(r.What, "dma") {
			continue
		}
		if r.Start == 0 {
			return p, fmt.Errorf("%s: %s: address hidden", path, r.What)
		}
		p.PeripheralBase = r.Start - p.DMAOffset
		return p, p.Validate()
	}
	return p, fmt.Errorf("%s: no DMA controller", path)
}

// Probe detects the profile from the device tree, then /proc/iomem;
// failing both it returns Default with the device tree's error.
func Probe(fdtPath, iomemPath string) (Profile, error) {
	p, err := Detect(fdtPath)
	if err == nil {
		return p, nil
	}
	if q, qerr := FromIomem(iomemPath, Default); qerr == nil {
		return q, nil
	}
	return Default, err
}
