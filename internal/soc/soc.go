// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package soc describes where the DMA controller of each supported
// Broadcom SoC lives. The profile is detected from the flattened device
// tree that the firmware passes to the kernel, or loaded from YAML.
package soc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/platinasystems/fdt"
	"go.yaml.in/yaml/v3"

	"github.com/platinasystems/goes-dmabench/internal/vc"
)

const DefaultFdt = "/sys/firmware/fdt"

// Peripheral bus address that the soc node's ranges translate.
const busPeripherals = 0x7e000000

const (
	dmaOffset      = 0x7000
	defaultChannel = 5
	nChannels      = 15
)

// Flattened device tree header.
const (
	fdtMagic     = 0xd00dfeed
	fdtHeaderLen = 40
)

var (
	ErrProfile = errors.New("invalid soc profile")
	ErrFdt     = errors.New("invalid device tree")
)

type Profile struct {
	Name       string   `yaml:"name"`
	Compatible []string `yaml:"compatible,omitempty"`
	// ARM physical address of the peripherals.
	PeripheralBase uint64 `yaml:"peripheral_base"`
	DMAOffset      uint64 `yaml:"dma_offset"`
	Channel        int    `yaml:"channel"`
	AliasMask      uint32 `yaml:"alias_mask"`
}

var (
	BCM2711 = Profile{
		Name:           "bcm2711",
		Compatible:     []string{"brcm,bcm2711"},
		PeripheralBase: 0xfe000000,
		DMAOffset:      dmaOffset,
		Channel:        defaultChannel,
		AliasMask:      vc.AliasMask,
	}
	BCM2837 = Profile{
		Name:           "bcm2837",
		Compatible:     []string{"brcm,bcm2837", "brcm,bcm2836"},
		PeripheralBase: 0x3f000000,
		DMAOffset:      dmaOffset,
		Channel:        defaultChannel,
		AliasMask:      vc.AliasMask,
	}
	BCM2835 = Profile{
		Name:           "bcm2835",
		Compatible:     []string{"brcm,bcm2835"},
		PeripheralBase: 0x20000000,
		DMAOffset:      dmaOffset,
		Channel:        defaultChannel,
		AliasMask:      vc.AliasMask,
	}

	Default = BCM2711

	Profiles = []Profile{BCM2711, BCM2837, BCM2835}
)

// DMABase returns the physical address of the DMA register window.
func (p Profile) DMABase() vc.Phys {
	return vc.Phys(p.PeripheralBase + p.DMAOffset)
}

func (p Profile) String() string {
	return fmt.Sprintf("%s: peripherals %#x dma %v channel %d",
		p.Name, p.PeripheralBase, p.DMABase(), p.Channel)
}

func (p Profile) Validate() error {
	switch {
	case p.PeripheralBase == 0:
		return fmt.Errorf("%w: %s: no peripheral base", ErrProfile, p.Name)
	case !p.DMABase().PageAligned():
		return fmt.Errorf("%w: %s: %v not page aligned",
			ErrProfile, p.Name, p.DMABase())
	case p.Channel < 0 || p.Channel >= nChannels:
		return fmt.Errorf("%w: %s: channel %d out of range",
			ErrProfile, p.Name, p.Channel)
	}
	return nil
}

// ByName returns the named preset.
func ByName(name string) (Profile, bool) {
	for _, p := range Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// ByCompatible returns the preset of the first matching compatible string.
func ByCompatible(compatible ...string) (Profile, bool) {
	for _, s := range compatible {
		for _, p := range Profiles {
			for _, c := range p.Compatible {
				if s == c {
					return p, true
				}
			}
		}
	}
	return Profile{}, false
}

// Load a profile from YAML. Fields left out are those of the preset named
// by the file, else Default.
func Load(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	var named struct {
		Name string `yaml:"name"`
	}
	if err = yaml.Unmarshal(b, &named); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	p, found := ByName(named.Name)
	if !found {
		p = Default
	}
	if err = yaml.Unmarshal(b, &p); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	if err = p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Detect the profile from a flattened device tree blob, DefaultFdt if path
// is empty. The root node's compatible picks the preset, and the soc
// node's ranges, when present, give the peripheral base. On error Default
// is returned along with it.
func Detect(path string) (Profile, error) {
	if len(path) == 0 {
		path = DefaultFdt
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Default, err
	}
	t, err := parseFdt(b)
	if err != nil {
		return Default, fmt.Errorf("%s: %w", path, err)
	}
	root := t.RootNode.Properties
	p, found := ByCompatible(Strings(root["compatible"])...)
	if !found {
		return Default, fmt.Errorf("%s: unsupported %q", path,
			Strings(root["compatible"]))
	}
	cells := 1
	if v := root["#address-cells"]; len(v) == 4 {
		cells = int(binary.BigEndian.Uint32(v))
	}
	t.MatchNode("soc", func(n *fdt.Node) {
		if base, ok := Ranges([]byte(n.Properties["ranges"]), cells); ok {
			p.PeripheralBase = base
		}
	})
	return p, p.Validate()
}

// parseFdt checks the blob header before parsing since the parser indexes
// the blob without bounds checks.
func parseFdt(b []byte) (t *fdt.Tree, err error) {
	if len(b) < fdtHeaderLen {
		return nil, fmt.Errorf("%w: %d byte header", ErrFdt, len(b))
	}
	if magic := binary.BigEndian.Uint32(b); magic != fdtMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrFdt, magic)
	}
	if size := binary.BigEndian.Uint32(b[4:]); int64(size) > int64(len(b)) {
		return nil, fmt.Errorf("%w: truncated, %d of %d bytes",
			ErrFdt, len(b), size)
	}
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("%w: %v", ErrFdt, r)
		}
	}()
	t = &fdt.Tree{Debug: false, IsLittleEndian: false}
	if err = t.Parse(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFdt, err)
	}
	if t.RootNode == nil {
		return nil, fmt.Errorf("%w: no root node", ErrFdt)
	}
	return t, nil
}

// Strings splits a NUL separated string list property.
func Strings(b []byte) []string {
	s := strings.TrimRight(string(b), "\x00")
	if len(s) == 0 {
		return nil
	}
	return strings.Split(s, "\x00")
}

// Ranges returns the parent address that the peripheral bus window
// translates to. Each entry is one child address cell, parentCells parent
// address cells and one size cell, big endian.
func Ranges(b []byte, parentCells int) (uint64, bool) {
	if parentCells < 1 || parentCells > 2 {
		return 0, false
	}
	n := 4 * (2 + parentCells)
	for ; len(b) >= n; b = b[n:] {
		if binary.BigEndian.Uint32(b) != busPeripherals {
			continue
		}
		var addr uint64
		for i := 0; i < parentCells; i++ {
			addr = addr<<32 | uint64(binary.BigEndian.Uint32(b[4+4*i:]))
		}
		return addr, true
	}
	return 0, false
}
