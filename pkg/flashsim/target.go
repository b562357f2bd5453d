// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashsim

import (
	"fmt"

	"github.com/u-root/lpcprog/pkg/lpc"
)

// TargetOptions tune the target's bus timing.
type TargetOptions struct {
	// SyncOnTar presents SYNC already on the second turnaround clock.
	SyncOnTar bool
	// NoSync leaves LAD floating where SYNC is due, like an absent chip.
	NoSync bool
}

type phase int

const (
	phIdle phase = iota
	phCycle
	phAddr
	phWData
	phTar1
	phTar2
	phSync
	phRData
	phHtar1
	phHtar2
)

const floating = 0xf

// Target is a memory cycle decoder in front of a Chip. It implements
// lpc.Signals from the host's point of view: the host's calls are the pin
// transitions, and the target reacts on every rising clock edge.
type Target struct {
	chip *Chip
	opts TargetOptions

	dir   lpc.Direction
	host  uint8
	frame bool
	drive uint8

	ph    phase
	cycle uint8
	n     int
	addr  uint32
	data  uint8

	violations []error
}

var _ lpc.Signals = (*Target)(nil)

func NewTarget(c *Chip, opts TargetOptions) *Target {
	return &Target{chip: c, opts: opts, dir: lpc.Output, host: floating, drive: floating}
}

// Chip returns the simulated part.
func (t *Target) Chip() *Chip {
	return t.chip
}

// Violations returns the protocol errors seen so far, such as both sides
// driving LAD at once.
func (t *Target) Violations() []error {
	return append([]error(nil), t.violations...)
}

func (t *Target) violation(format string, a ...interface{}) {
	t.violations = append(t.violations, fmt.Errorf(format, a...))
}

func (t *Target) SetDirection(d lpc.Direction) { t.dir = d }
func (t *Target) WriteNibble(v uint8)          { t.host = v & 0xf }
func (t *Target) ClockLow()                    {}
func (t *Target) FrameAssert()                 { t.frame = true }
func (t *Target) FrameDeassert()               { t.frame = false }

// ReadNibble returns what is on LAD: the target's drive while the host is
// listening, the host's own value otherwise.
func (t *Target) ReadNibble() uint8 {
	if t.dir == lpc.Input {
		return t.drive
	}
	return t.host
}

// hostData checks the host owns LAD during a host-driven clock.
func (t *Target) hostData() uint8 {
	if t.dir != lpc.Output {
		t.violation("LAD not driven by host in phase %d", t.ph)
		return floating
	}
	return t.host
}

// targetDrive puts v on LAD during a target-driven clock.
func (t *Target) targetDrive(v uint8) {
	if t.dir == lpc.Output {
		t.violation("bus contention in phase %d", t.ph)
	}
	t.drive = v
}

// ClockHigh is the rising edge where the target samples or drives.
func (t *Target) ClockHigh() {
	if t.frame && t.dir == lpc.Output && t.host == 0 {
		t.ph = phCycle
		t.drive = floating
		return
	}

	switch t.ph {
	case phIdle:
	case phCycle:
		t.cycle = t.hostData()
		t.addr, t.n = 0, 0
		t.ph = phIdle
		if t.cycle == lpc.CycleMemRead || t.cycle == lpc.CycleMemWrite {
			t.ph = phAddr
		}
	case phAddr:
		t.addr = t.addr<<4 | uint32(t.hostData())
		t.n++
		if t.n == 8 {
			t.n = 0
			t.ph = phTar1
			if t.cycle == lpc.CycleMemWrite {
				t.ph = phWData
			}
		}
	case phWData:
		d := t.hostData()
		if t.n == 0 {
			t.data = d
			t.n++
		} else {
			t.data |= d << 4
			t.n = 0
			t.ph = phTar1
		}
	case phTar1:
		// The host drives 0xf for half of this clock, then floats.
		t.drive = floating
		t.ph = phTar2
	case phTar2:
		if t.opts.SyncOnTar && !t.opts.NoSync {
			t.targetDrive(0)
			t.access()
			return
		}
		t.targetDrive(floating)
		t.ph = phSync
	case phSync:
		if t.opts.NoSync {
			t.targetDrive(floating)
			t.ph = phHtar1
			return
		}
		t.targetDrive(0)
		t.access()
	case phRData:
		if t.n == 0 {
			t.targetDrive(t.data & 0xf)
			t.n++
		} else {
			t.targetDrive(t.data >> 4)
			t.n = 0
			t.ph = phHtar1
		}
	case phHtar1:
		t.targetDrive(floating)
		t.ph = phHtar2
	case phHtar2:
		t.hostData()
		t.drive = floating
		t.ph = phIdle
	}
}

// access runs the chip side of the cycle once SYNC has been given.
func (t *Target) access() {
	if t.cycle == lpc.CycleMemWrite {
		t.chip.Write(t.addr, t.data)
		t.ph = phHtar1
		return
	}
	t.data = t.chip.Read(t.addr)
	t.n = 0
	t.ph = phRData
}
