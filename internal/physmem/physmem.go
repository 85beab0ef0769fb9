// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package physmem maps physical memory, named by bus or physical address,
// into the process through /dev/mem.
package physmem

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/platinasystems/goes-dmabench/internal/vc"
)

const DefaultDevice = "/dev/mem"

var ErrMap = errors.New("physical memory map failed")

type Mapper struct {
	f    *os.File
	path string
	// Bus alias bits removed to form the physical offset.
	AliasMask uint32
	pageSize  int
	regions   map[*Region]struct{}
}

// Region is a CPU window onto physical pages. The slice is only valid
// until Unmap.
type Region struct {
	Bus  vc.Bus
	Phys vc.Phys
	b    []byte
	n    int
}

// Open the memory device, DefaultDevice if path is empty.
func Open(path string) (*Mapper, error) {
	if len(path) == 0 {
		path = DefaultDevice
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMap, err)
	}
	return &Mapper{
		f:         f,
		path:      path,
		AliasMask: vc.AliasMask,
		pageSize:  os.Getpagesize(),
		regions:   make(map[*Region]struct{}),
	}, nil
}

// Phys masks the alias bits from a bus address.
func (m *Mapper) Phys(bus vc.Bus) vc.Phys {
	return vc.Phys(uint32(bus) &^ m.AliasMask)
}

// Map n bytes starting at the given bus address.
func (m *Mapper) Map(bus vc.Bus, n int) (*Region, error) {
	r, err := m.MapPhys(m.Phys(bus), n)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", bus, err)
	}
	r.Bus = bus
	return r, nil
}

// MapPhys maps n bytes of physical memory at the given page aligned
// offset.
func (m *Mapper) MapPhys(phys vc.Phys, n int) (*Region, error) {
	if m.f == nil {
		return nil, fmt.Errorf("%w: %s closed", ErrMap, m.path)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: invalid length %d", ErrMap, n)
	}
	if uint64(phys)%uint64(m.pageSize) != 0 {
		return nil, fmt.Errorf("%w: %v not page aligned", ErrMap, phys)
	}
	length := (n + m.pageSize - 1) &^ (m.pageSize - 1)
	b, err := unix.Mmap(int(m.f.Fd()), int64(phys), length,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap %s at %v: %v",
			ErrMap, m.path, phys, err)
	}
	r := &Region{Phys: phys, b: b, n: n}
	m.regions[r] = struct{}{}
	return r, nil
}

// Unmap the region; this must precede release of the underlying block.
func (m *Mapper) Unmap(r *Region) error {
	if r == nil || r.b == nil {
		return nil
	}
	delete(m.regions, r)
	b := r.b
	r.b = nil
	r.n = 0
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("munmap %v: %w", r.Phys, err)
	}
	return nil
}

// Mapped returns the number of regions not yet unmapped.
func (m *Mapper) Mapped() int { return len(m.regions) }

// Close the memory device. Existing mappings stay valid until unmapped.
func (m *Mapper) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// Bytes returns the requested length of the window; the page padding
// beyond is not reachable through the slice.
func (r *Region) Bytes() []byte { return r.b[:r.n:r.n] }

func (r *Region) Addr() vc.Bus { return r.Bus }

func (r *Region) Len() int { return r.n }

func (r *Region) Mapped() bool { return r.b != nil }

func (r *Region) String() string {
	return fmt.Sprintf("%v %v %d bytes", r.Bus, r.Phys, r.n)
}
