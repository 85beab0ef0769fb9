// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package cmd defines what a goes command must and may provide.
package cmd

import "github.com/platinasystems/goes-dmabench/lang"

// Cmd is run by name. It may also have,
//
//	Man() lang.Alt
//	Kind() Kind
type Cmd interface {
	Apropos() lang.Alt
	Main(...string) error
	String() string
	Usage() string
}
