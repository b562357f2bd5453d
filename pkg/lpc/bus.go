// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/u-root/lpcprog/pkg/logger"
	"github.com/u-root/lpcprog/pkg/metric"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

var trace = logger.LogContainer.GetLogger()

var cycles = metric.Counter(metric.MetricOpts{
	Subsystem: "lpc",
	Name:      "cycles_total",
	Help:      "LPC memory cycles by type and result",
}, "cycle", "result")

// Bus runs LPC memory cycles over a set of Signals.
type Bus struct {
	m sync.Mutex
	s Signals
}

func NewBus(s Signals) *Bus {
	return &Bus{s: s}
}

// Signals returns the pins the bus drives.
func (b *Bus) Signals() Signals {
	return b.s
}

func (b *Bus) begin() frame {
	b.m.Lock()
	if c, ok := b.s.(Critical); ok {
		c.Begin()
	}
	return frame{b.s}
}

func (b *Bus) end() {
	if c, ok := b.s.(Critical); ok {
		c.End()
	}
	b.m.Unlock()
}

// MemRead runs a memory read cycle. On a rejected SYNC it returns 0xff and
// an error wrapping qiprog.ErrNoResponse; the bus is handed back to the
// host either way.
func (b *Bus) MemRead(addr uint32) (uint8, error) {
	f := b.begin()
	defer b.end()

	f.start(CycleMemRead)
	f.address(addr)
	if !f.syncOK() {
		f.tarToHost()
		cycles.WithLabelValues("read", "no_response").Inc()
		trace.Debug("LPC read: bad SYNC", logger.LogContainer.Hex("addr", addr))
		return 0xff, fmt.Errorf("read %08x: %w", addr, qiprog.ErrNoResponse)
	}
	d := f.readByte()
	f.tarToHost()

	cycles.WithLabelValues("read", "ok").Inc()
	return d, nil
}

// MemWrite runs a memory write cycle.
func (b *Bus) MemWrite(addr uint32, d uint8) error {
	f := b.begin()
	defer b.end()

	f.start(CycleMemWrite)
	f.address(addr)
	f.writeByte(d)
	ok := f.syncOK()
	f.tarToHost()
	if !ok {
		cycles.WithLabelValues("write", "no_response").Inc()
		trace.Debug("LPC write: bad SYNC",
			logger.LogContainer.Hex("addr", addr),
			logger.LogContainer.Int("data", int(d)))
		return fmt.Errorf("write %08x: %w", addr, qiprog.ErrNoResponse)
	}
	cycles.WithLabelValues("write", "ok").Inc()
	return nil
}

// MemReadN reads len(p) consecutive bytes starting at addr. Every byte is
// attempted; a failed byte reads as 0xff and all failures are combined in
// the returned error.
func (b *Bus) MemReadN(addr uint32, p []byte) error {
	var err error
	for i := range p {
		var e error
		p[i], e = b.MemRead(addr + uint32(i))
		err = multierr.Append(err, e)
	}
	return err
}
