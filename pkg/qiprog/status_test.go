// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qiprog

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/multierr"
)

func TestStatusOf(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want Status
	}{
		{nil, Success},
		{ErrArgument, StatusArgument},
		{fmt.Errorf("set bus: %w", ErrArgument), StatusArgument},
		{ErrTimeout, StatusTimeout},
		{ErrNoResponse, StatusNoResponse},
		{ErrUnimplemented, StatusGeneric},
		{errors.New("pin broke"), StatusGeneric},
		{multierr.Combine(nil, ErrNoResponse, nil), StatusNoResponse},
		{multierr.Combine(errors.New("x"), ErrTimeout), StatusTimeout},
	} {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusErrRoundTrip(t *testing.T) {
	for _, s := range []Status{Success, StatusGeneric, StatusArgument, StatusTimeout, StatusNoResponse} {
		if got := StatusOf(s.Err()); got != s {
			t.Errorf("StatusOf(%v.Err()) = %v", s, got)
		}
	}
}

func TestIsCombined(t *testing.T) {
	err := multierr.Combine(errors.New("first"), fmt.Errorf("byte 3: %w", ErrNoResponse))
	if !Is(err, ErrNoResponse) {
		t.Errorf("Is(%v, ErrNoResponse) = false", err)
	}
	if Is(err, ErrTimeout) {
		t.Errorf("Is(%v, ErrTimeout) = true", err)
	}
}

type readOnly struct{}

func (readOnly) Open() error                      { return nil }
func (readOnly) Read8(addr uint32) (uint8, error) { return 0, nil }

func TestDriverOps(t *testing.T) {
	ops := DriverOps(readOnly{})
	if !ops.Has(OpOpen | OpRead8) {
		t.Errorf("ops %v missing open/read8", ops)
	}
	if ops.Has(OpWrite8) || ops.Has(OpRead) {
		t.Errorf("ops %v reports operations the driver lacks", ops)
	}
	if s := ops.String(); s != "open,read8" {
		t.Errorf("ops.String() = %q", s)
	}
}

func TestBusString(t *testing.T) {
	if s := (BusLPC | BusFWH).String(); s != "LPC|FWH" {
		t.Errorf("got %q", s)
	}
	if s := Bus(0).String(); s != "bus(0x0)" {
		t.Errorf("got %q", s)
	}
}
