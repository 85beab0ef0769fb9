// Copyright © 2015-2016 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package goes

import "fmt"

type helper interface {
	Help(...string) string
}

// Help returns the command's own help, if it has any, or its usage.
func (g *Goes) Help(args ...string) string {
	if len(args) > 0 {
		if v, found := g.ByName[args[0]]; found {
			if method, found := v.(helper); found {
				return method.Help(args[1:]...)
			}
			return Usage(v)
		}
	}
	return Usage(g)
}

func (g *Goes) help(args ...string) error {
	if len(args) > 0 {
		if _, found := g.ByName[args[0]]; !found {
			return fmt.Errorf("%s: not found", args[0])
		}
	}
	fmt.Fprintln(g.stdout(), g.Help(args...))
	return nil
}
