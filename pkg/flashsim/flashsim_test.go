// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package flashsim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/u-root/lpcprog/pkg/lpc"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

func unlock(c *Chip, cmd uint8) {
	c.Write(0x5555, 0xaa)
	c.Write(0x2aaa, 0x55)
	c.Write(0x5555, cmd)
}

func settle(c *Chip) {
	for i := 0; i < 16; i++ {
		c.Read(0)
	}
}

func TestChipID(t *testing.T) {
	c := NewChip(SST49LF080A)
	unlock(c, 0x90)
	if !c.IDMode() {
		t.Fatalf("chip not in ID mode after enter command")
	}
	if v, d := c.Read(0), c.Read(1); v != 0xbf || d != 0x5b {
		t.Errorf("ID = %02x %02x, want bf 5b", v, d)
	}
	unlock(c, 0xf0)
	if c.IDMode() {
		t.Errorf("chip still in ID mode after exit command")
	}
	if v := c.Read(0); v != 0xff {
		t.Errorf("Read(0) = %02x after ID exit, want ff", v)
	}
}

func TestChipProgramAndErase(t *testing.T) {
	c := NewChip(SST49LF080A)
	unlock(c, 0xa0)
	c.Write(0x1234, 0x5a)
	if v := c.Read(0x1234); v == 0x5a {
		t.Errorf("chip not busy right after programming")
	}
	settle(c)
	if v := c.Read(0x1234); v != 0x5a {
		t.Errorf("Read(0x1234) = %02x, want 5a", v)
	}

	// Programming can only clear bits.
	unlock(c, 0xa0)
	c.Write(0x1234, 0xf0)
	settle(c)
	if v := c.Read(0x1234); v != 0x50 {
		t.Errorf("Read(0x1234) = %02x, want 50", v)
	}

	unlock(c, 0x80)
	c.Write(0x5555, 0xaa)
	c.Write(0x2aaa, 0x55)
	c.Write(0x1000, 0x30)
	settle(c)
	if v := c.Read(0x1234); v != 0xff {
		t.Errorf("Read(0x1234) = %02x after sector erase, want ff", v)
	}
	want := []Command{{"program", 0x1234}, {"program", 0x1234}, {"sector-erase", 0x1000}}
	if diff := cmp.Diff(want, c.Commands()); diff != "" {
		t.Errorf("commands (-want +got):\n%s", diff)
	}
}

func TestChipBusyToggles(t *testing.T) {
	cfg := SST49LF080A
	cfg.BusyReads = -1
	c := NewChip(cfg)
	unlock(c, 0xa0)
	c.Write(0, 0)
	prev := c.Read(0)
	for i := 0; i < 8; i++ {
		v := c.Read(0)
		if v&0x40 == prev&0x40 {
			t.Fatalf("read %d: DQ6 did not toggle", i)
		}
		prev = v
	}
}

func TestChipExactUnlock(t *testing.T) {
	cfg := SST49LF080A
	cfg.CmdMask = 0xff
	cfg.ExactUnlock = true
	c := NewChip(cfg)
	unlock(c, 0x90)
	if c.IDMode() {
		t.Errorf("16 bit unlock accepted by an 8 bit part")
	}
	c.Write(0x55, 0xaa)
	c.Write(0xaa, 0x55)
	c.Write(0x55, 0x90)
	if !c.IDMode() {
		t.Errorf("8 bit unlock rejected")
	}
}

func TestTargetRoundTrip(t *testing.T) {
	for _, opts := range []TargetOptions{{}, {SyncOnTar: true}} {
		c := NewChip(SST49LF080A)
		c.Load(0x10, []byte{0xde, 0xad})
		tg := NewTarget(c, opts)
		b := lpc.NewBus(tg)

		p := make([]byte, 2)
		if err := b.MemReadN(0xfff00010, p); err != nil {
			t.Fatalf("%+v: MemReadN: %v", opts, err)
		}
		if diff := cmp.Diff([]byte{0xde, 0xad}, p); diff != "" {
			t.Errorf("%+v: data (-want +got):\n%s", opts, diff)
		}

		for _, w := range []struct {
			a uint32
			v uint8
		}{{0x5555, 0xaa}, {0x2aaa, 0x55}, {0x5555, 0x90}} {
			if err := b.MemWrite(w.a, w.v); err != nil {
				t.Fatalf("%+v: MemWrite: %v", opts, err)
			}
		}
		if !c.IDMode() {
			t.Errorf("%+v: ID command not decoded", opts)
		}
		if v := tg.Violations(); len(v) != 0 {
			t.Errorf("%+v: protocol violations: %v", opts, v)
		}
	}
}

func TestTargetNoSync(t *testing.T) {
	tg := NewTarget(NewChip(SST49LF080A), TargetOptions{NoSync: true})
	b := lpc.NewBus(tg)
	v, err := b.MemRead(0)
	if !errors.Is(err, qiprog.ErrNoResponse) || v != 0xff {
		t.Errorf("MemRead = %02x, %v; want ff, ErrNoResponse", v, err)
	}
	// The bus must be usable again right away.
	tg.opts.NoSync = false
	if _, err := b.MemRead(0); err != nil {
		t.Errorf("MemRead after failure: %v", err)
	}
	if v := tg.Violations(); len(v) != 0 {
		t.Errorf("protocol violations: %v", v)
	}
}
