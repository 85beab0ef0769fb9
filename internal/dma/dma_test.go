// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package dma_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinasystems/goes-dmabench/internal/dma"
	"github.com/platinasystems/goes-dmabench/internal/dmamem"
	"github.com/platinasystems/goes-dmabench/internal/mbox"
	"github.com/platinasystems/goes-dmabench/internal/physmem"
	"github.com/platinasystems/goes-dmabench/internal/vctest"
)

const channel = 5

type rig struct {
	fw     *vctest.Firmware
	engine *vctest.Engine
	mb     *mbox.Mailbox
	pm     *physmem.Mapper
	c      *dma.Channel
}

func newRig(t *testing.T) *rig {
	fw := vctest.NewFirmware(t, 1<<20)
	pm, err := physmem.Open(fw.Path)
	require.NoError(t, err)
	mb := mbox.New(fw)
	engine := vctest.NewEngine(t, fw, channel)
	c, err := dma.New(engine.Regs, channel)
	require.NoError(t, err)
	c.ResetDelay = 0
	t.Cleanup(func() {
		assert.Equal(t, 0, mb.Live(), "leaked blocks")
		mb.Close()
		pm.Close()
	})
	return &rig{fw, engine, mb, pm, c}
}

func (r *rig) alloc(t *testing.T, n int) *dmamem.Mem {
	m, err := dmamem.Alloc(r.mb, r.pm, n, dmamem.DefaultFlags)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, m.Close()) })
	return m
}

func TestTransferPattern(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 4096)
	dst := r.alloc(t, 4096)

	pattern := bytes.Repeat([]byte{0xab}, 4096)
	copy(src.Bytes(), pattern)

	d, err := dma.BuildDescriptor(cb.Bytes(), dst.Bus, src.Bus, 4096)
	require.NoError(t, err)
	assert.Equal(t, uint32(dma.TISrcInc|dma.TIDestInc), d.TI)
	assert.Equal(t, src.Bus, d.Source())
	assert.Equal(t, dst.Bus, d.Dest())
	assert.Equal(t, uint32(4096), d.TxfrLen)
	assert.Zero(t, d.Stride)
	assert.Zero(t, d.NextCB)

	assert.True(t, r.c.Enabled())
	assert.Equal(t, dma.Idle, r.c.State())
	r.c.Reset()
	assert.Equal(t, dma.Reset, r.c.State())
	require.NoError(t, r.c.Start(cb.Bus))
	assert.Equal(t, dma.Active, r.c.State())
	require.NoError(t, r.c.Wait(context.Background()))
	assert.Equal(t, dma.Done, r.c.State())

	assert.Equal(t, pattern, dst.Bytes())
	assert.Equal(t, int64(1), r.engine.Transfers.Load())

	st := r.c.Dump()
	assert.Equal(t, channel, st.Channel)
	assert.Equal(t, uint32(dma.TISrcInc|dma.TIDestInc), st.TI)
	assert.Equal(t, uint32(cb.Bus), st.ConblkAD)
	assert.Zero(t, st.CS&dma.CSActive)
}

func TestTransferIdempotent(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 3000)
	dst := r.alloc(t, 3000)
	for i := range src.Bytes() {
		src.Bytes()[i] = byte(i * 7)
	}
	_, err := dma.BuildDescriptor(cb.Bytes(), dst.Bus, src.Bus, 3000)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		for j := range dst.Bytes() {
			dst.Bytes()[j] = 0
		}
		require.NoError(t, r.c.Run(context.Background(), cb.Bus))
		require.Equal(t, src.Bytes(), dst.Bytes(), "run %d", i)
	}
	assert.Equal(t, int64(5), r.engine.Transfers.Load())
}

func TestTransferBounds(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 8192)
	dst := r.alloc(t, 4096)
	canary := r.alloc(t, 4096)
	require.Equal(t, dst.Bus.Add(4096), canary.Bus, "canary must follow dst")

	copy(canary.Bytes(), bytes.Repeat([]byte{0xca}, 4096))
	copy(src.Bytes(), bytes.Repeat([]byte{0x11}, 8192))

	err := r.c.Transfer(context.Background(), cb, dst, src, 8192)
	assert.ErrorIs(t, err, dma.ErrLength)
	assert.Equal(t, bytes.Repeat([]byte{0xca}, 4096), canary.Bytes())
	assert.Zero(t, r.engine.Transfers.Load())

	require.NoError(t, r.c.Transfer(context.Background(), cb, dst, src, 4096))
	assert.Equal(t, src.Bytes()[:4096], dst.Bytes())
	assert.Equal(t, bytes.Repeat([]byte{0xca}, 4096), canary.Bytes())
}

func TestStartNeedsReset(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	assert.ErrorIs(t, r.c.Start(cb.Bus), dma.ErrState)
	assert.ErrorIs(t, r.c.Wait(context.Background()), dma.ErrState)
	r.c.Reset()
	assert.Error(t, r.c.Start(cb.Bus.Add(4)), "unaligned control block")
}

func TestWaitTimeout(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 4096)
	dst := r.alloc(t, 4096)
	r.engine.Hang.Store(true)
	r.c.Spin = 64

	ctx, cancel := context.WithTimeout(context.Background(),
		20*time.Millisecond)
	defer cancel()
	err := r.c.Transfer(ctx, cb, dst, src, 4096)
	assert.ErrorIs(t, err, dma.ErrTimeout)
	assert.Equal(t, dma.Idle, r.c.State())
	assert.Eventually(t, func() bool {
		return r.engine.CS()&dma.CSActive == 0
	}, time.Second, time.Millisecond, "abort didn't reset channel")

	r.engine.Hang.Store(false)
	require.NoError(t, r.c.Transfer(context.Background(), cb, dst, src, 4096))
}

func TestWaitBackoff(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 4096)
	dst := r.alloc(t, 4096)
	copy(src.Bytes(), bytes.Repeat([]byte{0x3c}, 4096))
	r.c.Spin = 0
	r.engine.SetDelay(5 * time.Millisecond)
	require.NoError(t, r.c.Transfer(context.Background(), cb, dst, src, 4096))
	assert.Equal(t, src.Bytes(), dst.Bytes())
}

func TestEngineError(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 4096)
	dst := r.alloc(t, 4096)
	d, err := dma.BuildDescriptor(cb.Bytes(), dst.Bus, src.Bus, 4096)
	require.NoError(t, err)
	d.TI = 0
	err = r.c.Run(context.Background(), cb.Bus)
	assert.ErrorIs(t, err, dma.ErrEngine)
}

func TestBuildDescriptorLength(t *testing.T) {
	r := newRig(t)
	cb := r.alloc(t, dma.ControlBlockSize)
	src := r.alloc(t, 4096)
	_, err := dma.BuildDescriptor(cb.Bytes()[:16], src.Bus, src.Bus, 64)
	assert.ErrorIs(t, err, dma.ErrLength)
	_, err = dma.BuildDescriptor(cb.Bytes(), src.Bus, src.Bus, 0)
	assert.ErrorIs(t, err, dma.ErrLength)
}

func TestNewChannelRange(t *testing.T) {
	b := make([]byte, dma.Len)
	_, err := dma.New(b, dma.NChannels)
	assert.Error(t, err)
	_, err = dma.New(b[:64], 0)
	assert.Error(t, err)
}
