// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flashsim simulates a JEDEC parallel flash chip sitting on an LPC
// bus. Chip models the command state machine at byte level, Target puts it
// behind the pin-level lpc.Signals interface so the whole programming
// stack can run without hardware.
package flashsim

import (
	"fmt"
	"sync"
)

// Config describes the simulated part.
type Config struct {
	// Size in bytes, a power of two. Addresses wrap modulo Size.
	Size       uint32
	SectorSize uint32
	BlockSize  uint32
	VendorID   uint8
	DeviceID   uint8
	// CmdMask selects the address bits compared against the unlock
	// offsets 0x5555 and 0x2aaa.
	CmdMask uint32
	// ExactUnlock requires the low 16 address bits above CmdMask to be
	// zero in an unlock cycle. Only meaningful for parts decoded at 0.
	ExactUnlock bool
	// BusyReads is how many status reads toggle DQ6 after a program or
	// erase. Negative keeps the chip busy forever.
	BusyReads int
}

// SST49LF080A is an 8 Mbit LPC firmware hub part.
var SST49LF080A = Config{
	Size:       1 << 20,
	SectorSize: 4 << 10,
	BlockSize:  64 << 10,
	VendorID:   0xbf,
	DeviceID:   0x5b,
	CmdMask:    0x7fff,
	BusyReads:  3,
}

type state int

const (
	stRead state = iota
	stUnlock1
	stUnlock2
	stProgram
	stEraseSetup
	stErase1
	stErase2
)

// Command is an entry of the chip's command history.
type Command struct {
	Name string
	Addr uint32
}

func (c Command) String() string {
	return fmt.Sprintf("%s@%08x", c.Name, c.Addr)
}

// Chip is a byte-addressed JEDEC flash model.
type Chip struct {
	mu     sync.Mutex
	cfg    Config
	mem    []byte
	st     state
	idMode bool
	busy   int
	toggle uint8
	log    []Command
}

func NewChip(cfg Config) *Chip {
	c := &Chip{cfg: cfg, mem: make([]byte, cfg.Size)}
	for i := range c.mem {
		c.mem[i] = 0xff
	}
	return c
}

// Config returns the configuration the chip was built with.
func (c *Chip) Config() Config {
	return c.cfg
}

func (c *Chip) offset(addr uint32) uint32 {
	return addr & (c.cfg.Size - 1)
}

func (c *Chip) isCmd(addr, want uint32) bool {
	if c.cfg.ExactUnlock {
		return addr&0xffff == want&c.cfg.CmdMask
	}
	return addr&c.cfg.CmdMask == want&c.cfg.CmdMask
}

func (c *Chip) record(name string, addr uint32) {
	c.log = append(c.log, Command{name, addr})
}

// Read returns the byte a read cycle at addr would see.
func (c *Chip) Read(addr uint32) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy != 0 {
		if c.busy > 0 {
			c.busy--
		}
		c.toggle ^= 0x40
		return 0x80 | c.toggle
	}
	if c.idMode {
		if addr&1 == 0 {
			return c.cfg.VendorID
		}
		return c.cfg.DeviceID
	}
	return c.mem[c.offset(addr)]
}

// Write feeds a write cycle at addr to the command state machine.
func (c *Chip) Write(addr uint32, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy != 0 {
		return
	}
	switch c.st {
	case stProgram:
		c.mem[c.offset(addr)] &= v
		c.record("program", addr)
		c.startBusy()
		c.st = stRead
		return
	case stRead, stEraseSetup:
		if v == 0xaa && c.isCmd(addr, 0x5555) {
			if c.st == stEraseSetup {
				c.st = stErase1
			} else {
				c.st = stUnlock1
			}
			return
		}
	case stUnlock1, stErase1:
		if v == 0x55 && c.isCmd(addr, 0x2aaa) {
			c.st++
			return
		}
	case stUnlock2:
		if c.isCmd(addr, 0x5555) {
			c.command(addr, v)
			return
		}
	case stErase2:
		c.eraseCommand(addr, v)
		return
	}
	c.st = stRead
	if v == 0xf0 {
		c.idMode = false
		c.record("id-exit", addr)
	}
}

func (c *Chip) command(addr uint32, v uint8) {
	c.st = stRead
	switch v {
	case 0x90:
		c.idMode = true
		c.record("id-enter", addr)
	case 0xf0:
		c.idMode = false
		c.record("id-exit", addr)
	case 0xa0:
		c.st = stProgram
	case 0x80:
		c.st = stEraseSetup
	default:
		c.record(fmt.Sprintf("unknown-%02x", v), addr)
	}
}

func (c *Chip) eraseCommand(addr uint32, v uint8) {
	c.st = stRead
	off := c.offset(addr)
	switch {
	case v == 0x10 && c.isCmd(addr, 0x5555):
		c.fill(0, c.cfg.Size)
		c.record("chip-erase", addr)
	case v == 0x30:
		base := off &^ (c.cfg.SectorSize - 1)
		c.fill(base, c.cfg.SectorSize)
		c.record("sector-erase", addr)
	case v == 0x50:
		base := off &^ (c.cfg.BlockSize - 1)
		c.fill(base, c.cfg.BlockSize)
		c.record("block-erase", addr)
	default:
		c.record(fmt.Sprintf("unknown-erase-%02x", v), addr)
		return
	}
	c.startBusy()
}

func (c *Chip) fill(off, n uint32) {
	for i := off; i < off+n; i++ {
		c.mem[i] = 0xff
	}
}

func (c *Chip) startBusy() {
	c.busy = c.cfg.BusyReads
}

// IDMode reports whether the chip answers reads with its ID.
func (c *Chip) IDMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idMode
}

// Commands returns the recognized command history.
func (c *Chip) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.log...)
}

// Load copies p into the array at off, bypassing the command interface.
func (c *Chip) Load(off uint32, p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.mem[c.offset(off):], p)
}

// Dump returns a copy of n bytes of the array starting at off.
func (c *Chip) Dump(off, n uint32) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.offset(off)
	return append([]byte(nil), c.mem[o:o+n]...)
}
