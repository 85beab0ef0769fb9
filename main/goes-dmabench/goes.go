// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"github.com/platinasystems/goes-dmabench"
	"github.com/platinasystems/goes-dmabench/cmd"
	"github.com/platinasystems/goes-dmabench/cmd/dmabench"
	"github.com/platinasystems/goes-dmabench/cmd/dmastat"
	"github.com/platinasystems/goes-dmabench/lang"
)

var Goes = &goes.Goes{
	NAME: "goes-dmabench",
	APROPOS: lang.Alt{
		lang.EnUS: "DMA engine benchmark machine",
	},
	ByName: map[string]cmd.Cmd{
		"dmabench": &dmabench.Command{},
		"dmastat":  &dmastat.Command{},
	},
}
