// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package vctest emulates the VideoCore firmware and DMA engine for tests.
// A sparse file stands in for /dev/mem so that physmem maps it like the
// real thing.
package vctest

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/platinasystems/goes-dmabench/internal/mbox"
	"github.com/platinasystems/goes-dmabench/internal/vc"
)

// Bus alias of L1 non-allocating memory.
const Alias = 0xC0000000

// First page handed out; page zero is left as a guard.
const Base = vc.PageSize

type block struct {
	phys   vc.Phys
	size   uint32
	locked bool
}

// Firmware implements mbox.Transport over a bump allocator of Size bytes.
type Firmware struct {
	mu sync.Mutex

	// Path of the file that backs physical memory.
	Path string
	Size int

	// Tags of every exchange, in order.
	Calls []mbox.Tag
	// Tags to refuse, as the firmware does when out of memory.
	Refuse map[mbox.Tag]bool

	next   vc.Phys
	handle uint32
	blocks map[uint32]*block
	closed bool
}

// NewFirmware returns a firmware managing size bytes after Base.
func NewFirmware(tb testing.TB, size int) *Firmware {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "mem")
	f, err := os.Create(path)
	if err != nil {
		tb.Fatal(err)
	}
	defer f.Close()
	if err = f.Truncate(int64(Base + size)); err != nil {
		tb.Fatal(err)
	}
	return &Firmware{
		Path:   path,
		Size:   size,
		Refuse: make(map[mbox.Tag]bool),
		next:   Base,
		blocks: make(map[uint32]*block),
	}
}

func (fw *Firmware) Property(m mbox.Message) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	tag := m.Tag()
	fw.Calls = append(fw.Calls, tag)
	if fw.Refuse[tag] {
		m.Reply(0)
		return nil
	}
	v := m.Values()
	switch tag {
	case mbox.TagAllocate:
		size, align := v[0], v[1]
		if align == 0 {
			align = vc.PageSize
		}
		phys := (fw.next + vc.Phys(align) - 1) &^ (vc.Phys(align) - 1)
		if size == 0 || int(phys)+int(size) > Base+fw.Size {
			m.Reply(0)
			return nil
		}
		fw.next = phys + vc.Phys(size)
		fw.handle++
		fw.blocks[fw.handle] = &block{phys: phys, size: size}
		m.Reply(fw.handle)
	case mbox.TagLock:
		b, found := fw.blocks[v[0]]
		if !found {
			m.Reply(0)
			return nil
		}
		b.locked = true
		m.Reply(uint32(b.phys) | Alias)
	case mbox.TagUnlock:
		b, found := fw.blocks[v[0]]
		if !found || !b.locked {
			m.Reply(1)
			return nil
		}
		b.locked = false
		m.Reply(0)
	case mbox.TagFree:
		if _, found := fw.blocks[v[0]]; !found {
			m.Reply(1)
			return nil
		}
		delete(fw.blocks, v[0])
		m.Reply(0)
	default:
		m.Fail()
	}
	return nil
}

func (fw *Firmware) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.closed = true
	return nil
}

// Allocated returns the number of blocks not yet freed.
func (fw *Firmware) Allocated() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return len(fw.blocks)
}

// Locked returns the number of blocks locked.
func (fw *Firmware) Locked() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	n := 0
	for _, b := range fw.blocks {
		if b.locked {
			n++
		}
	}
	return n
}

func (fw *Firmware) Closed() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.closed
}

// Count returns the number of exchanges with the given tag.
func (fw *Firmware) Count(tag mbox.Tag) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	n := 0
	for _, t := range fw.Calls {
		if t == tag {
			n++
		}
	}
	return n
}
