// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lpc

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	pt "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

func checkIdle(t *testing.T, f *fakeSignals) {
	t.Helper()
	if f.dir != Output {
		t.Errorf("LAD left as %v, want output", f.dir)
	}
	last := f.edges[len(f.edges)-1]
	if last.dir != Output || last.out != idleNibble {
		t.Errorf("last edge %+v, want host driving 0xf", last)
	}
	for i, e := range f.edges {
		if e.frame != (i == 0) {
			t.Errorf("edge %d: LFRAME# asserted = %v", i, e.frame)
		}
	}
}

func TestMemWriteFrame(t *testing.T) {
	f := newFakeSignals(t, 0)
	b := NewBus(f)
	if err := b.MemWrite(0xffbc5555, 0x5a); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}
	want := []uint8{0x0, CycleMemWrite, 0xf, 0xf, 0xb, 0xc, 0x5, 0x5, 0x5, 0x5, 0xa, 0x5, 0xf}
	if diff := cmp.Diff(want, f.driven()); diff != "" {
		t.Errorf("driven nibbles (-want +got):\n%s", diff)
	}
	if len(f.edges) != 16 {
		t.Errorf("%d clocks, want 16", len(f.edges))
	}
	if f.reads != 2 {
		t.Errorf("%d samples, want 2", f.reads)
	}
	checkIdle(t, f)
}

func TestMemWriteNoSync(t *testing.T) {
	f := newFakeSignals(t, 0x3, 0xa)
	b := NewBus(f)
	before := pt.ToFloat64(cycles.WithLabelValues("write", "no_response"))
	err := b.MemWrite(0x1000, 0x00)
	if !errors.Is(err, qiprog.ErrNoResponse) {
		t.Fatalf("MemWrite error = %v, want ErrNoResponse", err)
	}
	if f.reads != 3 {
		t.Errorf("%d samples, want 3", f.reads)
	}
	if got := pt.ToFloat64(cycles.WithLabelValues("write", "no_response")); got != before+1 {
		t.Errorf("no_response counter = %v, want %v", got, before+1)
	}
	checkIdle(t, f)
}

func TestMemRead(t *testing.T) {
	for _, tc := range []struct {
		name    string
		replies []uint8
		reads   int
	}{
		{"sync on tar", []uint8{0x0, 0x3, 0xc}, 4},
		{"sync after tar", []uint8{0xf, 0x0, 0x3, 0xc}, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeSignals(t, tc.replies...)
			b := NewBus(f)
			v, err := b.MemRead(0xffbc0000)
			if err != nil {
				t.Fatalf("MemRead: %v", err)
			}
			if v != 0xc3 {
				t.Errorf("MemRead = %02x, want c3", v)
			}
			if f.reads != tc.reads {
				t.Errorf("%d samples, want %d", f.reads, tc.reads)
			}
			want := []uint8{0x0, CycleMemRead, 0xf, 0xf, 0xb, 0xc, 0x0, 0x0, 0x0, 0x0, 0xf}
			if diff := cmp.Diff(want, f.driven()); diff != "" {
				t.Errorf("driven nibbles (-want +got):\n%s", diff)
			}
			checkIdle(t, f)
		})
	}
}

func TestMemReadNoSync(t *testing.T) {
	f := newFakeSignals(t, 0xf, 0x6)
	b := NewBus(f)
	v, err := b.MemRead(0)
	if !errors.Is(err, qiprog.ErrNoResponse) {
		t.Fatalf("MemRead error = %v, want ErrNoResponse", err)
	}
	if v != 0xff {
		t.Errorf("MemRead = %02x, want ff", v)
	}
	if f.reads != 3 {
		t.Errorf("%d samples, want 3", f.reads)
	}
	checkIdle(t, f)
}

func TestMemReadNAttemptsAll(t *testing.T) {
	// Byte 0 fails, byte 1 reads 0x21.
	f := newFakeSignals(t, 0xf, 0xf, 0xf, 0x0, 0x1, 0x2, 0xf)
	b := NewBus(f)
	p := make([]byte, 2)
	err := b.MemReadN(0x10, p)
	if qiprog.StatusOf(err) != qiprog.StatusNoResponse {
		t.Errorf("status = %v, want no response", qiprog.StatusOf(err))
	}
	if diff := cmp.Diff([]byte{0xff, 0x21}, p); diff != "" {
		t.Errorf("data (-want +got):\n%s", diff)
	}
}
