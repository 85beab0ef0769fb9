// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package vc defines the three address spaces of VideoCore brokered memory:
// the firmware's opaque allocation Handle, the Bus address seen by DMA
// masters, and the Phys offset that the CPU may map through /dev/mem.
//
// These are distinct types so that one may not be passed for another
// without an explicit conversion.
package vc

import "fmt"

// Allocation granularity of the firmware and the CPU page size of every
// supported SoC.
const PageSize = 4096

// AliasMask selects the bus alias bits (cached, coherent, direct, ...) that
// the VPU prefixes to SDRAM bus addresses.
const AliasMask = 0xC0000000

// Handle is an opaque firmware allocation id; zero is never valid.
type Handle uint32

// Bus is an address as seen by the DMA engine and other bus masters.
type Bus uint32

// Phys is an ARM physical address suitable as an mmap offset of /dev/mem.
type Phys uint64

func (h Handle) Valid() bool { return h != 0 }

func (h Handle) String() string { return fmt.Sprintf("handle(%d)", uint32(h)) }

// Phys strips the alias bits of a SDRAM bus address.
func (b Bus) Phys() Phys { return Phys(b &^ AliasMask) }

// Alias returns the alias bits of the bus address.
func (b Bus) Alias() uint32 { return uint32(b) & AliasMask }

// Add offsets the bus address by n bytes.
func (b Bus) Add(n int) Bus { return b + Bus(n) }

func (b Bus) String() string { return fmt.Sprintf("bus(%#08x)", uint32(b)) }

func (p Phys) PageAligned() bool { return p%PageSize == 0 }

func (p Phys) String() string { return fmt.Sprintf("phys(%#x)", uint64(p)) }

// RoundUp returns n rounded up to a multiple of PageSize.
func RoundUp(n int) int {
	return (n + PageSize - 1) &^ (PageSize - 1)
}
