// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jedec issues the standard JEDEC software command sequences to a
// parallel flash chip: ID read, byte program, sector and chip erase, and
// toggle-bit ready polling.
//
// Commands are addressed as base|(offset&mask). The mask is the set of
// low address bits the chip decodes for command cycles; Probe finds it.
// All addresses handed to this package are physical bus addresses.
package jedec

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/u-root/lpcprog/pkg/logger"
	"github.com/u-root/lpcprog/pkg/metric"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

const (
	CmdByteProgram = 0xa0
	CmdErase       = 0x80
	CmdEraseSector = 0x30
	CmdEraseBlock  = 0x50
	CmdEraseChip   = 0x10
	CmdEnterIDRead = 0x90
	CmdExitIDRead  = 0xf0
)

const (
	unlockAddr1 = 0x5555
	unlockAddr2 = 0x2aaa
	unlockData1 = 0xaa
	unlockData2 = 0x55

	toggleBit = 0x40
)

// DefaultMask is used for command addressing until a probe finds better.
const DefaultMask = 0xffff

var (
	log = logger.LogContainer.GetSimpleLogger()

	readyPolls = metric.Histogram(metric.MetricOpts{
		Subsystem: "jedec",
		Name:      "ready_polls",
		Help:      "Status reads until a program or erase completed",
	}, prometheus.ExponentialBuckets(2, 4, 10))
)

// Memory is byte access to the physical bus.
type Memory interface {
	Read8(addr uint32) (uint8, error)
	Read16(addr uint32) (uint16, error)
	Write8(addr uint32, v uint8) error
}

// Mask returns the contiguous low-bit mask of the given width.
func Mask(width uint) uint32 {
	return 1<<width - 1
}

// SendCommand writes the three cycle unlock sequence ending in cmd. All
// cycles are attempted even if one fails.
func SendCommand(m Memory, base, mask uint32, cmd uint8) error {
	return multierr.Combine(
		m.Write8(base|(unlockAddr1&mask), unlockData1),
		m.Write8(base|(unlockAddr2&mask), unlockData2),
		m.Write8(base|(unlockAddr1&mask), cmd),
	)
}

// IsOddParity reports whether v has an odd number of set bits. Genuine
// JEDEC manufacturer and device codes do.
func IsOddParity(v uint8) bool {
	return bits.OnesCount8(v)&1 == 1
}

// ProbeResult is the outcome of Probe.
type ProbeResult struct {
	ID   qiprog.ChipID
	Mask uint32
}

// Probe looks for a JEDEC chip near base, trying command masks from 16
// down to 8 bits. The first width that returns a plausible ID wins. When
// none does the result has method IDInvalid. The chip is always taken
// out of ID mode again, and Probe never fails: an absent chip is reported
// through the result.
func Probe(m Memory, base uint32) (ProbeResult, error) {
	var r ProbeResult
	var cmdBase uint32
	for w := uint(16); w >= 8; w-- {
		r.Mask = Mask(w)
		cmdBase = base &^ r.Mask
		if err := SendCommand(m, cmdBase, r.Mask, CmdEnterIDRead); err != nil {
			log.Debugf("ID entry with mask %04x: %v", r.Mask, err)
			continue
		}
		id, err := m.Read16(cmdBase)
		if err != nil {
			log.Debugf("ID read with mask %04x: %v", r.Mask, err)
			continue
		}
		vendor, device := uint8(id), uint8(id>>8)
		r.ID.VendorID = uint16(vendor)
		r.ID.DeviceID = uint32(device)
		if IsOddParity(vendor) && IsOddParity(device) {
			r.ID.Method = qiprog.IDJEDEC
			break
		}
		log.Debugf("ID %02x:%02x with mask %04x fails parity", vendor, device, r.Mask)
	}
	if err := SendCommand(m, cmdBase, r.Mask, CmdExitIDRead); err != nil {
		log.Warnf("ID exit at %08x: %v", cmdBase, err)
	}
	if r.ID.Method == qiprog.IDJEDEC {
		log.Infof("found JEDEC chip %02x:%02x, command mask %04x", r.ID.VendorID, r.ID.DeviceID, r.Mask)
	} else {
		log.Infof("no JEDEC chip at %08x", base)
	}
	return r, nil
}

// WaitConfig bounds ready polling.
type WaitConfig struct {
	// MaxPolls is the largest number of status reads. Zero means 1<<20.
	MaxPolls int
	// Timeout is the wall clock budget. Zero means 10s.
	Timeout time.Duration
	// Clock defaults to the system clock.
	Clock clock.Clock
}

func (w WaitConfig) withDefaults() WaitConfig {
	if w.MaxPolls <= 0 {
		w.MaxPolls = 1 << 20
	}
	if w.Timeout <= 0 {
		w.Timeout = 10 * time.Second
	}
	if w.Clock == nil {
		w.Clock = clock.New()
	}
	return w
}

// WaitReady polls addr until DQ6 stops toggling, that is until two
// consecutive reads agree on bit 6.
func WaitReady(m Memory, addr uint32, w WaitConfig) error {
	w = w.withDefaults()
	deadline := w.Clock.Now().Add(w.Timeout)

	prev, err := m.Read8(addr)
	if err != nil {
		return err
	}
	for polls := 2; polls <= w.MaxPolls; polls++ {
		cur, err := m.Read8(addr)
		if err != nil {
			return err
		}
		if (cur^prev)&toggleBit == 0 {
			readyPolls.Observe(float64(polls))
			return nil
		}
		prev = cur
		if w.Clock.Now().After(deadline) {
			return fmt.Errorf("chip at %08x busy after %v: %w", addr, w.Timeout, qiprog.ErrTimeout)
		}
	}
	return fmt.Errorf("chip at %08x busy after %d polls: %w", addr, w.MaxPolls, qiprog.ErrTimeout)
}

// ProgramByte writes v at addr and waits for completion. Every cycle and
// the ready wait are attempted; all failures are reported.
func ProgramByte(m Memory, addr uint32, v uint8, mask uint32, w WaitConfig) error {
	base := addr &^ mask
	err := multierr.Combine(
		SendCommand(m, base, mask, CmdByteProgram),
		m.Write8(addr, v),
	)
	return multierr.Append(err, WaitReady(m, base, w))
}

// ChipErase erases the whole chip. Every step is attempted and all
// failures are reported.
func ChipErase(m Memory, base, mask uint32, w WaitConfig) error {
	base &^= mask
	err := multierr.Combine(
		SendCommand(m, base, mask, CmdErase),
		SendCommand(m, base, mask, CmdEraseChip),
	)
	return multierr.Append(err, WaitReady(m, base, w))
}

// SectorErase erases the sector containing sector. The final command
// cycle goes to the sector address itself.
func SectorErase(m Memory, sector, mask uint32, w WaitConfig) error {
	base := sector &^ mask
	err := multierr.Combine(
		SendCommand(m, base, mask, CmdErase),
		m.Write8(base|(unlockAddr1&mask), unlockData1),
		m.Write8(base|(unlockAddr2&mask), unlockData2),
		m.Write8(sector, CmdEraseSector),
	)
	return multierr.Append(err, WaitReady(m, base, w))
}
