// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package vc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusPhys(t *testing.T) {
	for _, x := range []struct {
		bus   Bus
		phys  Phys
		alias uint32
	}{
		{0xC0001000, 0x1000, 0xC0000000},
		{0x40001000, 0x1000, 0x40000000},
		{0x3e40b000, 0x3e40b000, 0},
		{0xfe7ff000, 0x3e7ff000, 0xC0000000},
	} {
		assert.Equal(t, x.phys, x.bus.Phys(), "%v", x.bus)
		assert.Equal(t, x.alias, x.bus.Alias(), "%v", x.bus)
		assert.True(t, x.bus.Phys().PageAligned(), "%v", x.bus)
	}
	assert.False(t, Bus(0xC0001020).Phys().PageAligned())
	assert.Equal(t, Bus(0xC0001020), Bus(0xC0001000).Add(32))
}

func TestRoundUp(t *testing.T) {
	for n, want := range map[int]int{
		1:        PageSize,
		PageSize: PageSize,
		4097:     2 * PageSize,
		65536:    65536,
	} {
		assert.Equal(t, want, RoundUp(n), "%d", n)
	}
}

func TestHandle(t *testing.T) {
	assert.False(t, Handle(0).Valid())
	assert.True(t, Handle(7).Valid())
	assert.Equal(t, "handle(7)", Handle(7).String())
}
