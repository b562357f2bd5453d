// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/u-root/lpcprog/pkg/jedec"
	"github.com/u-root/lpcprog/pkg/lpc"
	"github.com/u-root/lpcprog/pkg/transport"
)

type Wait struct {
	MaxPolls int           `yaml:"max_polls"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WaitConfig converts the ready-poll bounds for the JEDEC layer.
func (w Wait) WaitConfig() jedec.WaitConfig {
	return jedec.WaitConfig{MaxPolls: w.MaxPolls, Timeout: w.Timeout}
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Config struct {
	// Board selects a pin preset from the platform package.
	Board string `yaml:"board"`
	// Pins overrides the board preset when any LAD line is set.
	Pins lpc.Pins `yaml:"pins"`
	// Settle overrides the preset settle delay when non-zero.
	Settle time.Duration `yaml:"settle"`
	// LockMemory pins the process in RAM so bit-banged frames do not stall
	// on page faults.
	LockMemory bool `yaml:"lock_memory"`

	ProbeBase     uint32 `yaml:"probe_base"`
	MaxDirectData uint32 `yaml:"max_direct_data"`
	Wait          Wait   `yaml:"wait"`

	Serial  transport.SerialConfig `yaml:"serial"`
	Metrics string                 `yaml:"metrics"`
	Log     Log                    `yaml:"log"`
}

var DefaultConfig = &Config{
	Board:         "rpi",
	LockMemory:    true,
	MaxDirectData: lpc.DefaultDriverOptions.MaxDirectData,
	Wait: Wait{
		MaxPolls: 1 << 20,
		Timeout:  10 * time.Second,
	},
	Serial: transport.SerialConfig{
		Port: "/dev/ttyGS0",
		Baud: 115200,
	},
	Metrics: ":9370",
	Log: Log{
		Level: "info",
	},
}

// Load reads a YAML file from fs on top of DefaultConfig. An empty path
// returns a copy of the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	c := *DefaultConfig
	if path == "" {
		return &c, nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Wait.MaxPolls < 0 {
		return fmt.Errorf("wait.max_polls is negative")
	}
	if c.Wait.Timeout < 0 {
		return fmt.Errorf("wait.timeout is negative")
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle is negative")
	}
	if c.MaxDirectData == 0 || c.MaxDirectData > transport.MaxPayload {
		return fmt.Errorf("max_direct_data %d outside 1-%d", c.MaxDirectData, transport.MaxPayload)
	}
	return nil
}

// HasPins reports whether the file overrides the board's pins.
func (c *Config) HasPins() bool {
	for _, n := range c.Pins.LAD {
		if n != "" {
			return true
		}
	}
	return false
}
