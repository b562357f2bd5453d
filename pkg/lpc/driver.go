// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

import (
	"fmt"

	"go.uber.org/multierr"

	"github.com/u-root/lpcprog/pkg/qiprog"
)

// DriverOptions configure what the LPC driver reports to the host.
type DriverOptions struct {
	// MaxDirectData is the largest single transfer the transport accepts.
	MaxDirectData uint32
	// Voltages supported by the board, in millivolts.
	Voltages []uint16
}

// DefaultDriverOptions matches a 3.3V-only LPC master.
var DefaultDriverOptions = DriverOptions{
	MaxDirectData: 4096,
	Voltages:      []uint16{3300},
}

// Driver is the LPC backend of the programmer: it implements every
// qiprog driver interface except bulk writes, which need a chip command
// set and are done by the session layer.
type Driver struct {
	bus  *Bus
	opts DriverOptions
}

var (
	_ qiprog.Driver             = (*Driver)(nil)
	_ qiprog.CapabilityReporter = (*Driver)(nil)
	_ qiprog.BusSetter          = (*Driver)(nil)
	_ qiprog.Reader32           = (*Driver)(nil)
	_ qiprog.Writer32           = (*Driver)(nil)
	_ qiprog.BulkReader         = (*Driver)(nil)
)

func NewDriver(s Signals, opts DriverOptions) *Driver {
	return &Driver{bus: NewBus(s), opts: opts}
}

// Bus returns the frame engine used by the driver.
func (d *Driver) Bus() *Bus {
	return d.bus
}

// Open configures the pins for LPC master mode.
func (d *Driver) Open() error {
	s := d.bus.Signals()
	if o, ok := s.(Opener); ok {
		if err := o.Open(); err != nil {
			return fmt.Errorf("open LPC pins: %w", err)
		}
	}
	s.SetDirection(Output)
	s.FrameDeassert()
	s.WriteNibble(idleNibble)
	s.ClockLow()
	log.Infof("LPC master ready")
	return nil
}

func (d *Driver) Capabilities() (qiprog.Capabilities, error) {
	c := qiprog.Capabilities{
		InstructionSet: 0,
		BusMaster:      qiprog.BusLPC,
		MaxDirectData:  d.opts.MaxDirectData,
	}
	if len(d.opts.Voltages) >= qiprog.MaxVoltages {
		return c, fmt.Errorf("%d voltages configured, at most %d fit: %w",
			len(d.opts.Voltages), qiprog.MaxVoltages-1, qiprog.ErrArgument)
	}
	copy(c.Voltages[:], d.opts.Voltages)
	return c, nil
}

// SetBus accepts LPC and nothing else.
func (d *Driver) SetBus(b qiprog.Bus) error {
	if b&qiprog.BusLPC != 0 && b&^qiprog.BusLPC == 0 {
		return nil
	}
	return fmt.Errorf("bus %v: %w", b, qiprog.ErrArgument)
}

func (d *Driver) Read8(addr uint32) (uint8, error) {
	return d.bus.MemRead(addr)
}

// Read16 reads little endian. Both bytes are always attempted.
func (d *Driver) Read16(addr uint32) (uint16, error) {
	var b [2]byte
	err := d.bus.MemReadN(addr, b[:])
	return uint16(b[0]) | uint16(b[1])<<8, err
}

// Read32 reads little endian. All bytes are always attempted.
func (d *Driver) Read32(addr uint32) (uint32, error) {
	var b [4]byte
	err := d.bus.MemReadN(addr, b[:])
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, err
}

func (d *Driver) Write8(addr uint32, v uint8) error {
	return d.bus.MemWrite(addr, v)
}

// Write16 writes little endian. Both bytes are always attempted.
func (d *Driver) Write16(addr uint32, v uint16) error {
	return multierr.Combine(
		d.bus.MemWrite(addr+0, uint8(v)),
		d.bus.MemWrite(addr+1, uint8(v>>8)),
	)
}

// Write32 writes little endian. All bytes are always attempted.
func (d *Driver) Write32(addr uint32, v uint32) error {
	return multierr.Combine(
		d.bus.MemWrite(addr+0, uint8(v)),
		d.bus.MemWrite(addr+1, uint8(v>>8)),
		d.bus.MemWrite(addr+2, uint8(v>>16)),
		d.bus.MemWrite(addr+3, uint8(v>>24)),
	)
}

func (d *Driver) ReadBulk(addr uint32, p []byte) error {
	return d.bus.MemReadN(addr, p)
}
