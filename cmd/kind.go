// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package cmd

const (
	// Requires root.
	Privileged Kind = 1 << iota
	// Left out of apropos listings.
	Hidden
)

func WhatKind(v Cmd) Kind {
	if m, found := v.(kinder); found {
		return m.Kind()
	}
	return 0
}

type kinder interface {
	Kind() Kind
}

type Kind uint16

func (k Kind) IsPrivileged() bool { return (k & Privileged) == Privileged }
func (k Kind) IsHidden() bool     { return (k & Hidden) == Hidden }

func (k Kind) String() string {
	s := "unknown"
	switch k {
	case 0:
		s = "normal"
	case Privileged:
		s = "privileged"
	case Hidden:
		s = "hidden"
	case Privileged | Hidden:
		s = "privileged, hidden"
	}
	return s
}
