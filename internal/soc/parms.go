// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package soc

import (
	"fmt"
	"strconv"

	"github.com/platinasystems/log"
	"github.com/platinasystems/parms"
)

// FromParms resolves the profile named by -profile, else probed from the
// device tree and /proc/iomem, then applies -base and -channel.
func FromParms(parm *parms.Parms, fdtPath, iomemPath string) (Profile, error) {
	var (
		p   Profile
		err error
	)
	if s := parm.ByName["-profile"]; len(s) > 0 {
		if p, err = Load(s); err != nil {
			return Profile{}, fmt.Errorf("profile: %w", err)
		}
	} else if p, err = Probe(fdtPath, iomemPath); err != nil {
		log.Print("warn", "soc: ", err, "; assuming ", p.Name)
	}
	if s := parm.ByName["-base"]; len(s) > 0 {
		if p.PeripheralBase, err = strconv.ParseUint(s, 0, 64); err != nil {
			return Profile{}, fmt.Errorf("-base: %q invalid", s)
		}
	}
	if s := parm.ByName["-channel"]; len(s) > 0 {
		if p.Channel, err = strconv.Atoi(s); err != nil {
			return Profile{}, fmt.Errorf("-channel: %q invalid", s)
		}
	}
	if err = p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}
