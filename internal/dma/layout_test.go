// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma

import (
	"testing"
	"unsafe"
)

func TestControlBlockLayout(t *testing.T) {
	var cb ControlBlock
	if n := unsafe.Sizeof(cb); n != ControlBlockSize {
		t.Fatalf("sizeof ControlBlock %d != %d", n, ControlBlockSize)
	}
	for _, x := range []struct {
		name      string
		got, want uintptr
	}{
		{"TI", unsafe.Offsetof(cb.TI), 0x00},
		{"SourceAD", unsafe.Offsetof(cb.SourceAD), 0x04},
		{"DestAD", unsafe.Offsetof(cb.DestAD), 0x08},
		{"TxfrLen", unsafe.Offsetof(cb.TxfrLen), 0x0c},
		{"Stride", unsafe.Offsetof(cb.Stride), 0x10},
		{"NextCB", unsafe.Offsetof(cb.NextCB), 0x14},
	} {
		if x.got != x.want {
			t.Errorf("%s offset %#x != %#x", x.name, x.got, x.want)
		}
	}
}

func TestRegsLayout(t *testing.T) {
	var r regs
	if n := unsafe.Sizeof(r.channel[0]); n != ChannelStride {
		t.Fatalf("sizeof channel %#x != %#x", n, ChannelStride)
	}
	if n := unsafe.Sizeof(r); n > Len {
		t.Fatalf("sizeof regs %#x > %#x", n, Len)
	}
	base := uintptr(unsafe.Pointer(&r))
	off := func(p *reg) uintptr { return uintptr(unsafe.Pointer(p)) - base }
	c5 := &r.channel[5]
	for _, x := range []struct {
		name      string
		got, want uintptr
	}{
		{"cs", off(&c5.cs), 0x500},
		{"conblk_ad", off(&c5.conblk_ad), 0x504},
		{"ti", off(&c5.ti), 0x508},
		{"source_ad", off(&c5.source_ad), 0x50c},
		{"dest_ad", off(&c5.dest_ad), 0x510},
		{"txfr_len", off(&c5.txfr_len), 0x514},
		{"stride", off(&c5.stride), 0x518},
		{"nextconbk", off(&c5.nextconbk), 0x51c},
		{"debug", off(&c5.debug), 0x520},
		{"int_status", off(&r.int_status), 0xfe0},
		{"enable", off(&r.enable), 0xff0},
	} {
		if x.got != x.want {
			t.Errorf("%s offset %#x != %#x", x.name, x.got, x.want)
		}
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:     "idle",
		Reset:    "reset",
		Loaded:   "loaded",
		Active:   "active",
		Done:     "done",
		State(9): "state(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d: %q != %q", int(s), got, want)
		}
	}
}
