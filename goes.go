// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package goes runs the commands of a machine by name. A Goes is itself a
// command so machines may nest command sets.
package goes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/platinasystems/goes-dmabench/cmd"
	"github.com/platinasystems/goes-dmabench/lang"
)

type Goes struct {
	NAME    string
	USAGE   string
	APROPOS lang.Alt
	MAN     lang.Alt
	ByName  map[string]cmd.Cmd

	// Stdout of the helpers, os.Stdout if nil.
	Stdout io.Writer
}

var helperFlags = map[string]string{
	"-h":        "help",
	"-help":     "help",
	"--help":    "help",
	"-apropos":  "apropos",
	"--apropos": "apropos",
	"-man":      "man",
	"--man":     "man",
	"-usage":    "usage",
	"--usage":   "usage",
}

func (g *Goes) String() string { return g.NAME }

func (g *Goes) stdout() io.Writer {
	if g.Stdout != nil {
		return g.Stdout
	}
	return os.Stdout
}

// Names returns the sorted names of all but hidden commands.
func (g *Goes) Names() []string {
	names := make([]string, 0, len(g.ByName))
	for name, v := range g.ByName {
		if !cmd.WhatKind(v).IsHidden() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Main runs the command named by the first argument with the rest. When
// the first argument is the machine itself, as with os.Args, it's
// dropped; a program linked by the name of a command runs that command.
//
//	COMMAND -help ARGS...	is	help COMMAND ARGS...
//
// and likewise for -apropos, -man, and -usage.
func (g *Goes) Main(args ...string) error {
	if len(args) > 0 {
		base := filepath.Base(args[0])
		if _, found := g.ByName[base]; found {
			args[0] = base
		} else if base == g.NAME {
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return fmt.Errorf("%s: COMMAND: missing", g)
	}
	args = g.swap(args)
	name := args[0]
	args = args[1:]
	switch name {
	case "apropos":
		return g.apropos(args...)
	case "help":
		return g.help(args...)
	case "man":
		return g.man(args...)
	case "usage":
		return g.usage(args...)
	}
	v, found := g.ByName[name]
	if !found {
		return fmt.Errorf("%s: command not found", name)
	}
	if err := v.Main(args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// swap a helper flag for the helper command.
func (g *Goes) swap(args []string) []string {
	if helper, found := helperFlags[args[0]]; found {
		return append([]string{helper}, args[1:]...)
	}
	if len(args) > 1 {
		if helper, found := helperFlags[args[1]]; found {
			return append([]string{helper, args[0]}, args[2:]...)
		}
	}
	return args
}
