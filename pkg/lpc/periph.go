// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Pins names the GPIO lines wired to the LPC bus, as known to gpioreg.
type Pins struct {
	LAD   [4]string `yaml:"lad"`
	Clock string    `yaml:"clock"`
	Frame string    `yaml:"frame"`
	// Settle is how long to wait after a clock edge before sampling.
	Settle time.Duration `yaml:"settle"`
}

var hostInit sync.Once
var hostErr error

// PeriphSignals bit-bangs LPC over periph.io GPIO pins.
type PeriphSignals struct {
	pins  Pins
	lad   [4]gpio.PinIO
	clk   gpio.PinIO
	frame gpio.PinIO
	dir   Direction

	// first pin error since Open, reported by Err
	mu  sync.Mutex
	err error
}

var (
	_ Signals  = (*PeriphSignals)(nil)
	_ Opener   = (*PeriphSignals)(nil)
	_ Critical = (*PeriphSignals)(nil)
)

func NewPeriphSignals(p Pins) *PeriphSignals {
	return &PeriphSignals{pins: p}
}

func lookupPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, fmt.Errorf("pin not configured")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %q not found", name)
	}
	return p, nil
}

// Open initializes the periph host drivers and resolves every pin.
func (s *PeriphSignals) Open() error {
	hostInit.Do(func() {
		if _, err := host.Init(); err != nil {
			hostErr = fmt.Errorf("host initialization failed: %w", err)
		}
	})
	if hostErr != nil {
		return hostErr
	}
	var err error
	for i, n := range s.pins.LAD {
		if s.lad[i], err = lookupPin(n); err != nil {
			return fmt.Errorf("LAD%d: %w", i, err)
		}
	}
	if s.clk, err = lookupPin(s.pins.Clock); err != nil {
		return fmt.Errorf("LCLK: %w", err)
	}
	if s.frame, err = lookupPin(s.pins.Frame); err != nil {
		return fmt.Errorf("LFRAME#: %w", err)
	}
	if err := s.clk.Out(gpio.Low); err != nil {
		return err
	}
	if err := s.frame.Out(gpio.High); err != nil {
		return err
	}
	s.dir = Input
	s.SetDirection(Output)
	return s.Err()
}

// Err returns the first pin error seen since Open.
func (s *PeriphSignals) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *PeriphSignals) check(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
		log.Errorf("LPC pin error: %v", err)
	}
	s.mu.Unlock()
}

func level(b bool) gpio.Level {
	if b {
		return gpio.High
	}
	return gpio.Low
}

func (s *PeriphSignals) settle() {
	if s.pins.Settle <= 0 {
		return
	}
	// Sleep granularity is far coarser than a bus clock.
	for t := time.Now(); time.Since(t) < s.pins.Settle; {
	}
}

func (s *PeriphSignals) SetDirection(d Direction) {
	if d == s.dir {
		return
	}
	s.dir = d
	for _, p := range s.lad {
		if d == Output {
			s.check(p.Out(gpio.High))
		} else {
			s.check(p.In(gpio.PullUp, gpio.NoEdge))
		}
	}
}

func (s *PeriphSignals) WriteNibble(v uint8) {
	for i, p := range s.lad {
		s.check(p.Out(level(v&(1<<uint(i)) != 0)))
	}
}

func (s *PeriphSignals) ReadNibble() uint8 {
	s.settle()
	var v uint8
	for i, p := range s.lad {
		if p.Read() == gpio.High {
			v |= 1 << uint(i)
		}
	}
	return v
}

func (s *PeriphSignals) ClockHigh() {
	s.check(s.clk.Out(gpio.High))
}

func (s *PeriphSignals) ClockLow() {
	s.check(s.clk.Out(gpio.Low))
}

func (s *PeriphSignals) FrameAssert() {
	s.check(s.frame.Out(gpio.Low))
}

func (s *PeriphSignals) FrameDeassert() {
	s.check(s.frame.Out(gpio.High))
}

// Begin pins the goroutine to its thread for the duration of a cycle.
func (s *PeriphSignals) Begin() {
	runtime.LockOSThread()
}

func (s *PeriphSignals) End() {
	runtime.UnlockOSThread()
}
