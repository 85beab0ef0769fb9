// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine(t *testing.T) {
	out := new(bytes.Buffer)
	Goes.Stdout = out
	defer func() { Goes.Stdout = nil }()

	require.NoError(t, Goes.Main("goes-dmabench", "apropos"))
	assert.Contains(t, out.String(), "dmabench")
	assert.Contains(t, out.String(), "dmastat")

	out.Reset()
	require.NoError(t, Goes.Main("/usr/bin/goes-dmabench", "dmabench", "-man"))
	assert.Contains(t, out.String(), "SYNOPSIS\n\tdmabench [-n RUNS]")

	for _, name := range []string{"dmabench", "dmastat"} {
		v := Goes.ByName[name]
		assert.Equal(t, name, v.String())
		assert.NotEmpty(t, v.Apropos().String())
	}
}
