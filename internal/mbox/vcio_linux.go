// Copyright © 2026 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mbox

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// _IOWR(100, 0, char *)
const ioctlProperty = 3<<30 | unsafe.Sizeof(uintptr(0))<<16 | 100<<8 | 0

type vcio struct {
	fd   int
	path string
}

func openVcio(path string) (*vcio, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &vcio{fd: fd, path: path}, nil
}

func (v *vcio) Property(m Message) error {
	if len(m) == 0 {
		return fmt.Errorf("%s: empty message", v.path)
	}
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd),
		uintptr(ioctlProperty), uintptr(unsafe.Pointer(&m[0])))
	if e != 0 {
		return fmt.Errorf("ioctl %s: %w", v.path, e)
	}
	return nil
}

func (v *vcio) Close() error {
	if v.fd < 0 {
		return nil
	}
	err := unix.Close(v.fd)
	v.fd = -1
	return err
}
