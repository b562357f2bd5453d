// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

// Cycle types, including the direction bit.
const (
	CycleMemRead  = 0x4
	CycleMemWrite = 0x6
)

const (
	startToken = 0x0
	idleNibble = 0xf
)

// frame drives the clock-by-clock phases of a single transaction. The
// numbers in the comments are the LPC clock indices of a memory cycle.
type frame struct {
	s Signals
}

func (f frame) pulse() {
	f.s.ClockHigh()
	f.s.ClockLow()
}

// start emits START and the cycle type (clocks 1-2).
func (f frame) start(cycle uint8) {
	f.s.SetDirection(Output)
	f.s.ClockLow()

	f.s.FrameAssert()
	f.s.WriteNibble(startToken)
	f.s.ClockHigh()
	f.s.FrameDeassert()
	f.s.ClockLow()

	f.s.WriteNibble(cycle)
	f.pulse()
}

// address emits a 32-bit address, most significant nibble first
// (clocks 3-10).
func (f frame) address(a uint32) {
	f.s.WriteNibble(uint8(a >> 28))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 24))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 20))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 16))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 12))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 8))
	f.pulse()
	f.s.WriteNibble(uint8(a >> 4))
	f.pulse()
	f.s.WriteNibble(uint8(a))
	f.pulse()
}

// readByte samples a data byte, least significant nibble first.
func (f frame) readByte() uint8 {
	f.s.ClockHigh()
	d := f.s.ReadNibble() & 0xf
	f.s.ClockLow()

	f.s.ClockHigh()
	d |= (f.s.ReadNibble() & 0xf) << 4
	f.s.ClockLow()
	return d
}

// writeByte drives a data byte, least significant nibble first.
func (f frame) writeByte(d uint8) {
	f.s.WriteNibble(d & 0xf)
	f.pulse()
	f.s.WriteNibble(d >> 4)
	f.pulse()
}

// tarToTarget hands LAD over to the target and returns what it drives on
// the second turnaround clock.
func (f frame) tarToTarget() uint8 {
	f.s.WriteNibble(idleNibble)
	f.s.SetDirection(Input)
	f.pulse()

	f.s.ClockHigh()
	v := f.s.ReadNibble() & 0xf
	f.s.ClockLow()
	return v
}

// sync samples one SYNC clock.
func (f frame) sync() uint8 {
	f.s.ClockHigh()
	v := f.s.ReadNibble() & 0xf
	f.s.ClockLow()
	return v
}

// tarToHost takes LAD back from the target and leaves it driven idle.
func (f frame) tarToHost() uint8 {
	f.s.ClockHigh()
	v := f.s.ReadNibble() & 0xf
	f.s.ClockLow()
	f.s.SetDirection(Output)

	f.s.WriteNibble(idleNibble)
	f.pulse()
	return v
}

// syncOK applies the turnaround tolerance. Some chips time TAR internally
// and already present SYNC on the second TAR clock. A zero there is taken
// as SYNC and the SYNC clock is skipped. Otherwise the next clock is the
// real SYNC and must be zero.
func (f frame) syncOK() bool {
	if f.tarToTarget() == 0 {
		return true
	}
	return f.sync() == 0
}
