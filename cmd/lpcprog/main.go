// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// lpcprog identifies, reads, erases and programs JEDEC flash chips over a
// bit-banged LPC bus, or serves those operations to a host over a serial
// line.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/spf13/afero"

	"github.com/u-root/lpcprog/config"
	"github.com/u-root/lpcprog/pkg/device"
	"github.com/u-root/lpcprog/pkg/flashsim"
	"github.com/u-root/lpcprog/pkg/logger"
	"github.com/u-root/lpcprog/pkg/lpc"
	"github.com/u-root/lpcprog/platform"
)

var (
	log = logger.LogContainer.GetSimpleLogger()

	appFs  afero.Fs  = afero.NewOsFs()
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	newSimChip = func() *flashsim.Chip {
		return flashsim.NewChip(flashsim.SST49LF080A)
	}
)

// address accepts decimal, 0x hex and 0 octal numbers.
type address uint32

func (a *address) Decode(ctx *kong.DecodeContext) error {
	var s string
	if err := ctx.Scan.PopValueInto("address", &s); err != nil {
		return err
	}
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", s, err)
	}
	*a = address(v)
	return nil
}

type Globals struct {
	Config   string  `help:"YAML configuration file." type:"path"`
	Board    string  `help:"Board pin preset, overrides the configuration."`
	Sim      bool    `help:"Use a simulated SST49LF080A instead of GPIO pins."`
	LogLevel string  `help:"Log level, overrides the configuration."`
	Size     address `help:"Chip size in bytes." default:"0x100000"`
	Sector   address `help:"Sector erase size in bytes." default:"0x1000"`
}

type CLI struct {
	Globals

	Probe probeCmd `cmd:"" help:"Identify the chip."`
	Read  readCmd  `cmd:"" help:"Read the chip into a file."`
	Write writeCmd `cmd:"" help:"Program a file into the chip."`
	Erase eraseCmd `cmd:"" help:"Erase the chip or a range of it."`
	Serve serveCmd `cmd:"" help:"Serve programmer operations over a serial port."`
}

type session struct {
	cfg *config.Config
	dev *device.Device
}

func (g *Globals) session() (*session, error) {
	cfg, err := config.Load(appFs, g.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	if err := logger.Configure(level, cfg.Log.File); err != nil {
		return nil, err
	}

	var sig lpc.Signals
	if g.Sim {
		log.Infof("Using a simulated chip")
		sig = flashsim.NewTarget(newSimChip(), flashsim.TargetOptions{})
	} else {
		pins, err := g.pins(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.LockMemory {
			if err := lpc.LockMemory(); err != nil {
				log.Warnf("Could not lock memory, bus timing may suffer: %v", err)
			}
		}
		sig = lpc.NewPeriphSignals(pins)
	}

	drv := lpc.NewDriver(sig, lpc.DriverOptions{
		MaxDirectData: cfg.MaxDirectData,
		Voltages:      lpc.DefaultDriverOptions.Voltages,
	})
	dev := device.New(drv,
		device.WithWait(cfg.Wait.WaitConfig()),
		device.WithProbeBase(cfg.ProbeBase))
	if err := dev.Open(); err != nil {
		return nil, fmt.Errorf("open programmer: %w", err)
	}
	return &session{cfg: cfg, dev: dev}, nil
}

func (g *Globals) pins(cfg *config.Config) (lpc.Pins, error) {
	if cfg.HasPins() && g.Board == "" {
		return cfg.Pins, nil
	}
	board := cfg.Board
	if g.Board != "" {
		board = g.Board
	}
	pins, err := platform.Lookup(board)
	if err != nil {
		return lpc.Pins{}, err
	}
	if cfg.Settle != 0 {
		pins.Settle = cfg.Settle
	}
	log.Infof("Using %s pins: LAD %v, LCLK %s, LFRAME# %s", board, pins.LAD, pins.Clock, pins.Frame)
	return pins, nil
}

func run(args []string) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("lpcprog"),
		kong.Description("LPC flash programmer."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals))
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("%v", err)
	}
}
