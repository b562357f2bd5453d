// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

import (
	"testing"
)

// edge is the bus state seen at a rising clock edge.
type edge struct {
	dir   Direction
	out   uint8
	frame bool
}

// fakeSignals records every rising edge and answers samples from a
// scripted list of nibbles. An exhausted script reads as a floating bus.
type fakeSignals struct {
	t       *testing.T
	dir     Direction
	out     uint8
	frame   bool
	edges   []edge
	replies []uint8
	reads   int
}

func newFakeSignals(t *testing.T, replies ...uint8) *fakeSignals {
	return &fakeSignals{t: t, dir: Output, replies: replies}
}

func (f *fakeSignals) SetDirection(d Direction) { f.dir = d }
func (f *fakeSignals) WriteNibble(v uint8)      { f.out = v & 0xf }
func (f *fakeSignals) ClockLow()                {}
func (f *fakeSignals) FrameAssert()             { f.frame = true }
func (f *fakeSignals) FrameDeassert()           { f.frame = false }

func (f *fakeSignals) ClockHigh() {
	f.edges = append(f.edges, edge{f.dir, f.out, f.frame})
}

func (f *fakeSignals) ReadNibble() uint8 {
	f.reads++
	if f.dir != Input {
		f.t.Errorf("sample %d taken while LAD is driven by the host", f.reads)
	}
	if len(f.replies) == 0 {
		return 0xf
	}
	v := f.replies[0]
	f.replies = f.replies[1:]
	return v
}

// driven returns the nibbles the host put on LAD at each edge it owned.
func (f *fakeSignals) driven() []uint8 {
	var r []uint8
	for _, e := range f.edges {
		if e.dir == Output {
			r = append(r, e.out)
		}
	}
	return r
}
