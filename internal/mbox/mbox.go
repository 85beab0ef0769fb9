// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mbox asks the VideoCore firmware, through the mailbox property
// interface, for physically contiguous memory that bus masters may use.
package mbox

import (
	"errors"
	"fmt"

	"github.com/platinasystems/goes-dmabench/internal/vc"
)

const DefaultDevice = "/dev/vcio"

// Flags select the cache policy of an allocation.
type Flags uint32

const (
	MemDiscardable Flags = 1 << 0
	// Normal allocating alias; don't use from the ARM.
	MemNormal Flags = 0 << 2
	// 0xC alias, uncached.
	MemDirect Flags = 1 << 2
	// 0x8 alias, non-allocating in L2 but coherent.
	MemCoherent Flags = 2 << 2
	// Allocating in L2.
	MemL1NonAllocating = MemDirect | MemCoherent
	MemZero            Flags = 1 << 4
	MemNoInit          Flags = 1 << 5
	MemHintPermalock   Flags = 1 << 6
)

var (
	ErrAlloc  = errors.New("mailbox allocate failed")
	ErrLock   = errors.New("mailbox lock failed")
	ErrUnlock = errors.New("mailbox unlock failed")
	ErrFree   = errors.New("mailbox free failed")
)

// Transport performs one property exchange, in place, with the firmware.
type Transport interface {
	Property(m Message) error
	Close() error
}

// Mailbox owns the handle namespace of every block it allocates.
type Mailbox struct {
	t Transport
	// handle -> locked
	live map[vc.Handle]bool
}

// Open the firmware channel device, DefaultDevice if path is empty.
func Open(path string) (*Mailbox, error) {
	if len(path) == 0 {
		path = DefaultDevice
	}
	t, err := openVcio(path)
	if err != nil {
		return nil, err
	}
	return New(t), nil
}

func New(t Transport) *Mailbox {
	return &Mailbox{
		t:    t,
		live: make(map[vc.Handle]bool),
	}
}

// Close the firmware channel. Blocks still allocated are leaked in the
// firmware's heap, so free them first.
func (m *Mailbox) Close() error {
	if m.t == nil {
		return nil
	}
	err := m.t.Close()
	m.t = nil
	return err
}

// Live returns the number of allocated, not yet freed, blocks.
func (m *Mailbox) Live() int { return len(m.live) }

func (m *Mailbox) call(tag Tag, nvalue int, values ...uint32) ([]uint32, error) {
	if m.t == nil {
		return nil, fmt.Errorf("%v: mailbox closed", tag)
	}
	msg := NewMessage(tag, nvalue, values...)
	if err := m.t.Property(msg); err != nil {
		return nil, fmt.Errorf("%v: %v", tag, err)
	}
	return msg.Response()
}

// Allocate size bytes, rounded up to the page granularity, of contiguous
// memory aligned to align bytes.
func (m *Mailbox) Allocate(size, align uint32, flags Flags) (vc.Handle, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: zero size", ErrAlloc)
	}
	rounded := uint32(vc.RoundUp(int(size)))
	if rounded < size {
		return 0, fmt.Errorf("%w: size %d overflows", ErrAlloc, size)
	}
	v, err := m.call(TagAllocate, 3, rounded, align, uint32(flags))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAlloc, err)
	}
	if len(v) < 1 || v[0] == 0 {
		return 0, fmt.Errorf("%w: no %d byte block available",
			ErrAlloc, rounded)
	}
	h := vc.Handle(v[0])
	if _, found := m.live[h]; found {
		return 0, fmt.Errorf("%w: firmware reissued live %v",
			ErrAlloc, h)
	}
	m.live[h] = false
	return h, nil
}

// Lock pins the block and returns its bus address.
func (m *Mailbox) Lock(h vc.Handle) (vc.Bus, error) {
	locked, found := m.live[h]
	switch {
	case !h.Valid():
		return 0, fmt.Errorf("%w: invalid %v", ErrLock, h)
	case !found:
		return 0, fmt.Errorf("%w: %v not allocated", ErrLock, h)
	case locked:
		return 0, fmt.Errorf("%w: %v already locked", ErrLock, h)
	}
	v, err := m.call(TagLock, 1, uint32(h))
	if err != nil {
		return 0, fmt.Errorf("%w: %v: %v", ErrLock, h, err)
	}
	if len(v) < 1 || v[0] == 0 {
		return 0, fmt.Errorf("%w: %v: no bus address", ErrLock, h)
	}
	m.live[h] = true
	return vc.Bus(v[0]), nil
}

// Unlock releases the pin; the bus address is no longer stable.
func (m *Mailbox) Unlock(h vc.Handle) error {
	if locked := m.live[h]; !locked {
		return fmt.Errorf("%w: %v not locked", ErrUnlock, h)
	}
	v, err := m.call(TagUnlock, 1, uint32(h))
	if err != nil {
		return fmt.Errorf("%w: %v: %v", ErrUnlock, h, err)
	}
	m.live[h] = false
	if len(v) > 0 && v[0] != 0 {
		return fmt.Errorf("%w: %v: status %#x", ErrUnlock, h, v[0])
	}
	return nil
}

// Free releases the block. The handle and any bus address derived from it
// are invalid once this is called, whatever the result.
func (m *Mailbox) Free(h vc.Handle) error {
	if _, found := m.live[h]; !found {
		return fmt.Errorf("%w: %v not allocated", ErrFree, h)
	}
	delete(m.live, h)
	v, err := m.call(TagFree, 1, uint32(h))
	if err != nil {
		return fmt.Errorf("%w: %v: %v", ErrFree, h, err)
	}
	if len(v) > 0 && v[0] != 0 {
		return fmt.Errorf("%w: %v: status %#x", ErrFree, h, v[0])
	}
	return nil
}
