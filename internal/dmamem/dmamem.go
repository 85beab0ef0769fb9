// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package dmamem provides firmware allocated memory that is at once locked
// for bus masters and mapped for the CPU.
package dmamem

import (
	"fmt"

	"github.com/platinasystems/goes-dmabench/internal/mbox"
	"github.com/platinasystems/goes-dmabench/internal/physmem"
	"github.com/platinasystems/goes-dmabench/internal/vc"
)

// Uncached, so the engine and CPU agree without cache maintenance.
const DefaultFlags = mbox.MemL1NonAllocating

// Mem is an allocated, locked and mapped block. It must be closed before
// its Mailbox and Mapper.
type Mem struct {
	*physmem.Region
	Handle vc.Handle
	// Allocated length, a multiple of vc.PageSize.
	Size int

	mb *mbox.Mailbox
	pm *physmem.Mapper
}

// Alloc acquires n bytes in order allocate, lock, and map. Should any step
// fail, those before are released in reverse order.
func Alloc(mb *mbox.Mailbox, pm *physmem.Mapper, n int, flags mbox.Flags) (m *Mem, err error) {
	if n <= 0 || n > 1<<30 {
		return nil, fmt.Errorf("%w: size %d", mbox.ErrAlloc, n)
	}
	h, err := mb.Allocate(uint32(n), vc.PageSize, flags)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			mb.Free(h)
		}
	}()
	bus, err := mb.Lock(h)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			mb.Unlock(h)
		}
	}()
	r, err := pm.Map(bus, n)
	if err != nil {
		return nil, err
	}
	return &Mem{
		Region: r,
		Handle: h,
		Size:   vc.RoundUp(n),
		mb:     mb,
		pm:     pm,
	}, nil
}

// Close releases in order unmap, unlock, and free, continuing past
// failures; it returns the first.
func (m *Mem) Close() error {
	if m.mb == nil {
		return nil
	}
	var errs []error
	if err := m.pm.Unmap(m.Region); err != nil {
		errs = append(errs, err)
	}
	if err := m.mb.Unlock(m.Handle); err != nil {
		errs = append(errs, err)
	}
	if err := m.mb.Free(m.Handle); err != nil {
		errs = append(errs, err)
	}
	m.mb, m.pm = nil, nil
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (m *Mem) String() string {
	return fmt.Sprint(m.Handle, " ", m.Region)
}
