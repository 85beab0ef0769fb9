// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

import (
	"fmt"
	"unsafe"

	"github.com/platinasystems/goes-dmabench/internal/vc"
)

// Transfer information bits of a control block.
const (
	TIInten        = 1 << 0
	TITdmode       = 1 << 1
	TIWaitResp     = 1 << 3
	TIDestInc      = 1 << 4
	TIDestWidth    = 1 << 5
	TIDestDreq     = 1 << 6
	TIDestIgnore   = 1 << 7
	TISrcInc       = 1 << 8
	TISrcWidth     = 1 << 9
	TISrcDreq      = 1 << 10
	TISrcIgnore    = 1 << 11
	TINoWideBursts = 1 << 26
)

const (
	ControlBlockSize  = 32
	ControlBlockAlign = 32
)

// ControlBlock is read by the engine from memory at the bus address loaded
// in CONBLK_AD. Every address within is a bus address.
type ControlBlock struct {
	TI       uint32
	SourceAD uint32
	DestAD   uint32
	TxfrLen  uint32
	Stride   uint32
	NextCB   uint32
	_        [2]uint32
}

func (cb *ControlBlock) Source() vc.Bus { return vc.Bus(cb.SourceAD) }
func (cb *ControlBlock) Dest() vc.Bus   { return vc.Bus(cb.DestAD) }

func (cb *ControlBlock) String() string {
	return fmt.Sprintf("ti %#x src %#08x dst %#08x len %d stride %#x next %#08x",
		cb.TI, cb.SourceAD, cb.DestAD, cb.TxfrLen, cb.Stride, cb.NextCB)
}

// BuildDescriptor overlays a control block at the start of b, the mapped
// memory of a block dedicated to it, for a flat copy of n bytes.
func BuildDescriptor(b []byte, dst, src vc.Bus, n int) (*ControlBlock, error) {
	if len(b) < ControlBlockSize {
		return nil, fmt.Errorf("%w: control block needs %d bytes, have %d",
			ErrLength, ControlBlockSize, len(b))
	}
	if uintptr(unsafe.Pointer(&b[0]))%ControlBlockAlign != 0 {
		return nil, fmt.Errorf("control block memory not %d byte aligned",
			ControlBlockAlign)
	}
	if n <= 0 || uint64(n) > MaxLength {
		return nil, fmt.Errorf("%w: %d", ErrLength, n)
	}
	cb := (*ControlBlock)(unsafe.Pointer(&b[0]))
	*cb = ControlBlock{
		TI:       TISrcInc | TIDestInc,
		SourceAD: uint32(src),
		DestAD:   uint32(dst),
		TxfrLen:  uint32(n),
		Stride:   0,
		NextCB:   0,
	}
	return cb, nil
}

// Largest TXFR_LEN of a full (channels 0-6) engine in linear mode.
const MaxLength = 1<<30 - 1
