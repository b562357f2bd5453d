// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lpc implements an LPC bus master on top of raw pin primitives.
//
// The bus is bit-banged: every clock edge, LFRAME# transition and LAD[3:0]
// nibble is driven by software through a Signals implementation. The
// external chip samples on the rising clock edge, so a transaction must
// not be interleaved with any other user of the pins. Bus serializes
// transactions and brackets them with the backend's critical section when
// it has one.
package lpc

import "github.com/u-root/lpcprog/pkg/logger"

var log = logger.LogContainer.GetSimpleLogger()

// Direction of the LAD[3:0] pins as seen from the host.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// Signals are the pin-level primitives of one LPC bus. None of them can
// fail; timing between calls is the implementation's responsibility.
type Signals interface {
	SetDirection(Direction)
	// WriteNibble drives the low four bits of v on LAD[3:0].
	WriteNibble(v uint8)
	// ReadNibble samples LAD[3:0].
	ReadNibble() uint8
	ClockHigh()
	ClockLow()
	// FrameAssert drives LFRAME# low.
	FrameAssert()
	// FrameDeassert drives LFRAME# high.
	FrameDeassert()
}

// Opener is implemented by Signals that need pin bring-up before use.
type Opener interface {
	Open() error
}

// Critical is implemented by Signals that can guarantee a transaction is
// not preempted between Begin and End.
type Critical interface {
	Begin()
	End()
}
