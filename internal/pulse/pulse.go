// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pulse raises an output line around each timed copy so that the
// copy can be seen, and measured, on a logic analyzer.
package pulse

import (
	"fmt"
	"io"

	"github.com/platinasystems/gpio"
)

// Line is a digital output.
type Line interface {
	Set(bool) error
}

// Pin is a sysfs GPIO output line, initially low.
type Pin struct {
	gpio.Pin
	Num int
}

// NewPin exports the numbered GPIO and drives it low.
func NewPin(num int) (*Pin, error) {
	p := &Pin{
		Pin: gpio.Pin(num) | gpio.IsOutputLo,
		Num: num,
	}
	if err := p.SetDirection(); err != nil {
		return nil, fmt.Errorf("gpio%d: %w", num, err)
	}
	return p, nil
}

func (p *Pin) Set(v bool) error {
	if err := p.SetValue(v); err != nil {
		return fmt.Errorf("gpio%d: %w", p.Num, err)
	}
	return nil
}

func (p *Pin) String() string { return fmt.Sprint("gpio", p.Num) }

// Close leaves the line low.
func (p *Pin) Close() error { return p.Set(false) }

// Nop is a line to nowhere, for systems without the analyzer wired up.
type Nop struct{}

func (Nop) Set(bool) error { return nil }

func (Nop) String() string { return "none" }

// Around drives l high for the duration of f. A failure to drive the line
// is returned only if f succeeds.
func Around(l Line, f func() error) error {
	if err := l.Set(true); err != nil {
		return err
	}
	err := f()
	if lerr := l.Set(false); err == nil {
		err = lerr
	}
	return err
}

// Release closes l if it may be closed, otherwise drives it low.
func Release(l Line) error {
	if c, ok := l.(io.Closer); ok {
		return c.Close()
	}
	return l.Set(false)
}
