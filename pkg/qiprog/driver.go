// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qiprog holds the types shared by programmer drivers, the session
// layer and the host transport: status codes, capability flags and the
// optional driver interfaces a bus backend may implement.
//
// A backend only implements the operations its hardware supports. Callers
// check Ops (or use the session layer, which does) instead of assuming every
// operation exists.
package qiprog

import "strings"

// Driver is the minimal bus backend.
type Driver interface {
	Open() error
}

type CapabilityReporter interface {
	Capabilities() (Capabilities, error)
}

type BusSetter interface {
	SetBus(Bus) error
}

type Reader8 interface {
	Read8(addr uint32) (uint8, error)
}

type Reader16 interface {
	Read16(addr uint32) (uint16, error)
}

type Reader32 interface {
	Read32(addr uint32) (uint32, error)
}

type Writer8 interface {
	Write8(addr uint32, v uint8) error
}

type Writer16 interface {
	Write16(addr uint32, v uint16) error
}

type Writer32 interface {
	Write32(addr uint32, v uint32) error
}

// BulkReader reads len(p) consecutive bytes starting at addr.
type BulkReader interface {
	ReadBulk(addr uint32, p []byte) error
}

// Op is a bitmask of operations available on a device.
type Op uint32

const (
	OpOpen Op = 1 << iota
	OpCapabilities
	OpSetBus
	OpReadChipID
	OpSetAddress
	OpSetChipSize
	OpSetEraseSize
	OpSetEraseCommand
	OpSetCustomEraseCommand
	OpSetWriteCommand
	OpSetCustomWriteCommand
	OpRead8
	OpRead16
	OpRead32
	OpWrite8
	OpWrite16
	OpWrite32
	OpRead
	OpWrite
)

var opNames = []string{
	"open", "capabilities", "set-bus", "read-chip-id", "set-address",
	"set-chip-size", "set-erase-size", "set-erase-command",
	"set-custom-erase-command", "set-write-command",
	"set-custom-write-command", "read8", "read16", "read32", "write8",
	"write16", "write32", "read", "write",
}

// Has reports whether all operations in o are present.
func (ops Op) Has(o Op) bool {
	return ops&o == o
}

func (ops Op) String() string {
	var s []string
	for i, n := range opNames {
		if ops&(1<<i) != 0 {
			s = append(s, n)
		}
	}
	return strings.Join(s, ",")
}

// DriverOps returns the operations drv implements directly.
func DriverOps(drv Driver) Op {
	ops := OpOpen
	if _, ok := drv.(CapabilityReporter); ok {
		ops |= OpCapabilities
	}
	if _, ok := drv.(BusSetter); ok {
		ops |= OpSetBus
	}
	if _, ok := drv.(Reader8); ok {
		ops |= OpRead8
	}
	if _, ok := drv.(Reader16); ok {
		ops |= OpRead16
	}
	if _, ok := drv.(Reader32); ok {
		ops |= OpRead32
	}
	if _, ok := drv.(Writer8); ok {
		ops |= OpWrite8
	}
	if _, ok := drv.(Writer16); ok {
		ops |= OpWrite16
	}
	if _, ok := drv.(Writer32); ok {
		ops |= OpWrite32
	}
	if _, ok := drv.(BulkReader); ok {
		ops |= OpRead
	}
	return ops
}
