// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qiprog

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Status is the result code reported to the host for every operation.
type Status uint8

const (
	Success Status = iota
	StatusGeneric
	StatusArgument
	StatusTimeout
	StatusNoResponse
)

var (
	// ErrArgument covers unsupported buses, invalid chip indices and
	// out-of-range parameters.
	ErrArgument = errors.New("invalid argument")
	// ErrNoResponse is returned when a bus turnaround sees a nonzero SYNC.
	ErrNoResponse = errors.New("no response from target")
	// ErrTimeout is returned when ready polling runs out of budget.
	ErrTimeout = errors.New("timed out waiting for target")
	// ErrUnimplemented is returned for operations that are stubbed or absent
	// from the active driver.
	ErrUnimplemented = errors.New("operation not implemented")
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case StatusGeneric:
		return "generic error"
	case StatusArgument:
		return "argument error"
	case StatusTimeout:
		return "timeout"
	case StatusNoResponse:
		return "no response"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Err returns the sentinel error matching s, or nil for Success.
func (s Status) Err() error {
	switch s {
	case Success:
		return nil
	case StatusArgument:
		return ErrArgument
	case StatusTimeout:
		return ErrTimeout
	case StatusNoResponse:
		return ErrNoResponse
	case StatusGeneric:
		return ErrUnimplemented
	}
	return fmt.Errorf("%w: unknown status %d", ErrUnimplemented, uint8(s))
}

// StatusOf maps err to a wire status. Combined errors report the status of
// the first recognized member.
func StatusOf(err error) Status {
	if err == nil {
		return Success
	}
	for _, e := range multierr.Errors(err) {
		switch {
		case errors.Is(e, ErrArgument):
			return StatusArgument
		case errors.Is(e, ErrTimeout):
			return StatusTimeout
		case errors.Is(e, ErrNoResponse):
			return StatusNoResponse
		}
	}
	return StatusGeneric
}

// Is reports whether err, or any error combined into it, matches target.
func Is(err, target error) bool {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, target) {
			return true
		}
	}
	return false
}
