// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dma drives one channel of the BCM283x/BCM2711 DMA controller
// through its memory mapped registers.
//
// A transfer is a control block in bus addressable memory and this
// handshake:
//
//	c.Reset()
//	c.Start(cbBus)
//	err := c.Wait(ctx)
//
// The engine raises no interrupt here, so Wait polls the channel's ACTIVE
// bit. An engine given a bad bus address may never clear it; bound Wait
// with a context deadline to turn that into ErrTimeout.
package dma

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/jpillora/backoff"

	"github.com/platinasystems/goes-dmabench/internal/vc"
)

// Offset of the DMA controller from the peripheral base and the length of
// its register window.
const (
	Offset = 0x7000
	Len    = 0x1000

	NChannels     = 15
	ChannelStride = 0x100
)

// Control and status bits.
const (
	CSActive                   = 1 << 0
	CSEnd                      = 1 << 1
	CSInt                      = 1 << 2
	CSDreq                     = 1 << 3
	CSPaused                   = 1 << 4
	CSDreqStopsDMA             = 1 << 5
	CSWaitingOutstandingWrites = 1 << 6
	CSError                    = 1 << 8
	CSWaitForOutstandingWrites = 1 << 28
	CSDisDebug                 = 1 << 29
	CSAbort                    = 1 << 30
	CSReset                    = 1 << 31
)

var (
	ErrState   = errors.New("channel not ready")
	ErrTimeout = errors.New("transfer timeout")
	ErrLength  = errors.New("invalid transfer length")
	ErrEngine  = errors.New("engine error")
)

type reg uint32

func (r *reg) get() uint32  { return atomic.LoadUint32((*uint32)(r)) }
func (r *reg) set(v uint32) { atomic.StoreUint32((*uint32)(r), v) }

type chanRegs struct {
	/* [0] active
	   [1] end, write 1 to clear
	   [8] error, see debug
	   [31] reset, self clearing */
	cs reg

	// bus address of the current control block, 32 byte aligned
	conblk_ad reg

	// read-only copies of the control block being processed
	ti        reg
	source_ad reg
	dest_ad   reg
	txfr_len  reg
	stride    reg
	nextconbk reg

	debug reg
	_     [ChannelStride - 0x24]byte
}

type regs struct {
	channel    [NChannels]chanRegs
	_          [0xfe0 - NChannels*ChannelStride]byte
	int_status reg
	_          [0xff0 - 0xfe4]byte
	enable     reg
}

type State int

const (
	Idle State = iota
	Reset
	Loaded
	Active
	Done
)

var stateName = []string{
	Idle:   "idle",
	Reset:  "reset",
	Loaded: "loaded",
	Active: "active",
	Done:   "done",
}

func (s State) String() string {
	if int(s) < len(stateName) {
		return stateName[s]
	}
	return fmt.Sprint("state(", int(s), ")")
}

// Buffer is mapped memory that the engine may reach.
type Buffer interface {
	Addr() vc.Bus
	Bytes() []byte
}

// Channel is a singleton hardware resource; the process must be its only
// user.
type Channel struct {
	Index int

	// Wait after writing reset before any other register write.
	ResetDelay time.Duration
	// Status reads before Wait starts to sleep between reads.
	Spin int
	// Sleep schedule after Spin.
	Backoff *backoff.Backoff

	all   *regs
	regs  *chanRegs
	state State
}

// New returns the given channel of the controller whose register window,
// at least Len bytes, is in b.
func New(b []byte, index int) (*Channel, error) {
	if index < 0 || index >= NChannels {
		return nil, fmt.Errorf("channel %d: out of range [0,%d)",
			index, NChannels)
	}
	if len(b) < int(unsafe.Sizeof(regs{})) {
		return nil, fmt.Errorf("register window: %d bytes < %d",
			len(b), unsafe.Sizeof(regs{}))
	}
	if uintptr(unsafe.Pointer(&b[0]))%4 != 0 {
		return nil, fmt.Errorf("register window: unaligned")
	}
	all := (*regs)(unsafe.Pointer(&b[0]))
	return &Channel{
		Index:      index,
		ResetDelay: 10 * time.Microsecond,
		Spin:       1 << 20,
		Backoff: &backoff.Backoff{
			Min:    time.Microsecond,
			Max:    time.Millisecond,
			Factor: 2,
		},
		all:  all,
		regs: &all.channel[index],
	}, nil
}

func (c *Channel) State() State { return c.state }

func (c *Channel) String() string { return fmt.Sprint("dma", c.Index) }

// Enabled reports whether the controller's global enable has this channel.
func (c *Channel) Enabled() bool {
	return c.all.enable.get()&(1<<uint(c.Index)) != 0
}

// Reset the channel. The reset isn't acknowledged so this waits a fixed
// delay for it to take effect.
func (c *Channel) Reset() {
	c.regs.cs.set(CSReset)
	time.Sleep(c.ResetDelay)
	c.state = Reset
}

// Start loads the control block address then activates the channel; from
// here the engine runs on its own.
func (c *Channel) Start(cb vc.Bus) error {
	if c.state != Reset {
		return fmt.Errorf("%v: start: %w, %v", c, ErrState, c.state)
	}
	if uint32(cb)%ControlBlockAlign != 0 {
		return fmt.Errorf("%v: start: control block %v unaligned", c, cb)
	}
	c.regs.conblk_ad.set(uint32(cb))
	c.state = Loaded
	c.regs.cs.set(CSActive)
	c.state = Active
	return nil
}

// Wait polls until the engine clears ACTIVE. With a context that is never
// done this may spin forever; otherwise the channel is reset and
// ErrTimeout returned once ctx is done.
func (c *Channel) Wait(ctx context.Context) error {
	if c.state != Active {
		return fmt.Errorf("%v: wait: %w, %v", c, ErrState, c.state)
	}
	start := time.Now()
	done := ctx.Done()
	if c.Backoff != nil {
		c.Backoff.Reset()
	}
	for i := 0; ; i++ {
		cs := c.regs.cs.get()
		if cs&CSActive == 0 {
			c.state = Done
			if cs&CSError != 0 {
				return fmt.Errorf("%v: %w: cs %#x debug %#x",
					c, ErrEngine, cs, c.regs.debug.get())
			}
			return nil
		}
		if i < c.Spin || c.Backoff == nil {
			if done != nil && i&0xff == 0 {
				select {
				case <-done:
					return c.abort(ctx, cs, start)
				default:
				}
			}
			continue
		}
		t := time.NewTimer(c.Backoff.Duration())
		select {
		case <-done:
			t.Stop()
			return c.abort(ctx, cs, start)
		case <-t.C:
		}
	}
}

func (c *Channel) abort(ctx context.Context, cs uint32, start time.Time) error {
	c.regs.cs.set(CSReset)
	c.state = Idle
	return fmt.Errorf("%v: %w: cs %#x conblk_ad %#08x after %v: %v",
		c, ErrTimeout, cs, c.regs.conblk_ad.get(),
		time.Since(start), ctx.Err())
}

// Run is the reset, start, wait handshake for a control block already in
// place.
func (c *Channel) Run(ctx context.Context, cb vc.Bus) error {
	c.Reset()
	if err := c.Start(cb); err != nil {
		return err
	}
	return c.Wait(ctx)
}

// Transfer copies n bytes from src to dst with a control block built in
// cb. The length must fit both buffers so the engine can't write past the
// destination's mapping.
func (c *Channel) Transfer(ctx context.Context, cb, dst, src Buffer, n int) error {
	if n > len(dst.Bytes()) || n > len(src.Bytes()) {
		return fmt.Errorf("%v: %w: %d exceeds dst %d or src %d",
			c, ErrLength, n, len(dst.Bytes()), len(src.Bytes()))
	}
	if _, err := BuildDescriptor(cb.Bytes(), dst.Addr(), src.Addr(), n); err != nil {
		return fmt.Errorf("%v: %w", c, err)
	}
	return c.Run(ctx, cb.Addr())
}

// Status is a snapshot of the channel registers.
type Status struct {
	Channel  int
	Enabled  bool
	CS       uint32
	ConblkAD uint32
	ControlBlock
	Debug uint32
}

func (c *Channel) Dump() Status {
	r := c.regs
	return Status{
		Channel:  c.Index,
		Enabled:  c.Enabled(),
		CS:       r.cs.get(),
		ConblkAD: r.conblk_ad.get(),
		ControlBlock: ControlBlock{
			TI:       r.ti.get(),
			SourceAD: r.source_ad.get(),
			DestAD:   r.dest_ad.get(),
			TxfrLen:  r.txfr_len.get(),
			Stride:   r.stride.get(),
			NextCB:   r.nextconbk.get(),
		},
		Debug: r.debug.get(),
	}
}

func (s Status) String() string {
	return fmt.Sprintf("dma%d: enabled %v cs %#08x conblk_ad %#08x debug %#08x\n\t%v",
		s.Channel, s.Enabled, s.CS, s.ConblkAD, s.Debug, &s.ControlBlock)
}
