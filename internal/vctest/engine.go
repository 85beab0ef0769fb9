// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package vctest

import (
	"encoding/binary"
	"os"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register layout of the emulated controller, independent of package dma
// so that each checks the other.
const (
	RegsLen       = 0x1000
	channelStride = 0x100
	enableOffset  = 0xff0

	csActive = 1 << 0
	csEnd    = 1 << 1
	csError  = 1 << 8
	csReset  = 1 << 31

	tiDestInc = 1 << 4
	tiSrcInc  = 1 << 8
)

// Register offsets within a channel.
const (
	regCS = iota * 4
	regConblkAD
	regTI
	regSourceAD
	regDestAD
	regTxfrLen
	regStride
	regNextConbk
	regDebug
)

// Engine performs control blocks written to its channel's registers over
// the firmware's memory.
type Engine struct {
	// Register window to pass to dma.New.
	Regs    []byte
	Channel int

	// Leave ACTIVE set, as an engine fed a bad address might.
	Hang      atomic.Bool
	Transfers atomic.Int64

	delay atomic.Int64
	mem   []byte
	stop  chan struct{}
	done  chan struct{}
}

func NewEngine(tb testing.TB, fw *Firmware, channel int) *Engine {
	tb.Helper()
	f, err := os.OpenFile(fw.Path, os.O_RDWR, 0)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	mem, err := unix.Mmap(int(f.Fd()), 0, Base+fw.Size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		tb.Fatal(err)
	}
	e := &Engine{
		Regs:    make([]byte, RegsLen),
		Channel: channel,
		mem:     mem,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.store(enableOffset, 1<<uint(channel))
	go e.run()
	tb.Cleanup(e.Stop)
	return e
}

// Stop the engine and release its memory mapping.
func (e *Engine) Stop() {
	select {
	case <-e.stop:
		return
	default:
	}
	close(e.stop)
	<-e.done
	unix.Munmap(e.mem)
}

// SetDelay holds ACTIVE at least d per transfer.
func (e *Engine) SetDelay(d time.Duration) { e.delay.Store(int64(d)) }

// Reg returns a channel register by offset.
func (e *Engine) Reg(off int) uint32 {
	return e.load(e.Channel*channelStride + off)
}

func (e *Engine) CS() uint32 { return e.Reg(regCS) }

func (e *Engine) reg(off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&e.Regs[off]))
}

func (e *Engine) load(off int) uint32     { return atomic.LoadUint32(e.reg(off)) }
func (e *Engine) store(off int, v uint32) { atomic.StoreUint32(e.reg(off), v) }

func (e *Engine) run() {
	defer close(e.done)
	base := e.Channel * channelStride
	cs := e.reg(base + regCS)
	for {
		select {
		case <-e.stop:
			return
		default:
		}
		v := atomic.LoadUint32(cs)
		switch {
		case v&csReset != 0:
			atomic.CompareAndSwapUint32(cs, v, 0)
		case v&csActive != 0 && !e.Hang.Load():
			status := e.transfer(base, e.load(base+regConblkAD))
			atomic.CompareAndSwapUint32(cs, v, status)
		}
		runtime.Gosched()
	}
}

func (e *Engine) word(phys uint32) uint32 {
	return binary.LittleEndian.Uint32(e.mem[phys:])
}

func (e *Engine) transfer(base int, conblk uint32) uint32 {
	fail := func(debug uint32) uint32 {
		e.store(base+regDebug, debug)
		return csError | csEnd
	}
	cb := conblk &^ Alias
	if conblk%32 != 0 || int(cb)+32 > len(e.mem) || cb < Base {
		return fail(1)
	}
	ti := e.word(cb)
	src := e.word(cb+4) &^ Alias
	dst := e.word(cb+8) &^ Alias
	n := e.word(cb + 12)
	e.store(base+regTI, ti)
	e.store(base+regSourceAD, e.word(cb+4))
	e.store(base+regDestAD, e.word(cb+8))
	e.store(base+regTxfrLen, n)
	e.store(base+regStride, e.word(cb+16))
	e.store(base+regNextConbk, e.word(cb+20))
	if ti&(tiSrcInc|tiDestInc) != tiSrcInc|tiDestInc {
		return fail(2)
	}
	if src < Base || dst < Base ||
		int(src)+int(n) > len(e.mem) || int(dst)+int(n) > len(e.mem) {
		return fail(4)
	}
	if d := time.Duration(e.delay.Load()); d > 0 {
		time.Sleep(d)
	}
	copy(e.mem[dst:dst+n], e.mem[src:src+n])
	e.Transfers.Add(1)
	e.store(base+regTxfrLen, 0)
	return csEnd
}
