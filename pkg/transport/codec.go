// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/u-root/lpcprog/pkg/qiprog"
)

type encoder struct {
	b []byte
}

func (e *encoder) u8(v uint8) *encoder {
	e.b = append(e.b, v)
	return e
}

func (e *encoder) u16(v uint16) *encoder {
	e.b = binary.LittleEndian.AppendUint16(e.b, v)
	return e
}

func (e *encoder) u32(v uint32) *encoder {
	e.b = binary.LittleEndian.AppendUint32(e.b, v)
	return e
}

// decoder reads little endian fields. The first short read sticks and
// every later field decodes as zero.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return make([]byte, n)
	}
	if len(d.b) < n {
		d.err = fmt.Errorf("payload truncated: %w", qiprog.ErrArgument)
		return make([]byte, n)
	}
	v := d.b[:n]
	d.b = d.b[n:]
	return v
}

func (d *decoder) u8() uint8   { return d.take(1)[0] }
func (d *decoder) u16() uint16 { return binary.LittleEndian.Uint16(d.take(2)) }
func (d *decoder) u32() uint32 { return binary.LittleEndian.Uint32(d.take(4)) }

func (d *decoder) remaining() int {
	return len(d.b)
}

// done reports a decode error, or leftover bytes.
func (d *decoder) done() error {
	if d.err == nil && len(d.b) != 0 {
		d.err = fmt.Errorf("%d trailing payload bytes: %w", len(d.b), qiprog.ErrArgument)
	}
	return d.err
}

func encodeCapabilities(c qiprog.Capabilities) []byte {
	e := &encoder{}
	e.u16(c.InstructionSet).u32(uint32(c.BusMaster)).u32(c.MaxDirectData)
	for _, v := range c.Voltages {
		e.u16(v)
	}
	return e.b
}

func decodeCapabilities(p []byte) (qiprog.Capabilities, error) {
	d := &decoder{b: p}
	c := qiprog.Capabilities{
		InstructionSet: d.u16(),
		BusMaster:      qiprog.Bus(d.u32()),
		MaxDirectData:  d.u32(),
	}
	for i := range c.Voltages {
		c.Voltages[i] = d.u16()
	}
	return c, d.done()
}

func encodeChipIDs(ids [qiprog.MaxChips]qiprog.ChipID) []byte {
	e := &encoder{}
	for _, id := range ids {
		e.u8(uint8(id.Method)).u16(id.VendorID).u32(id.DeviceID)
	}
	return e.b
}

func decodeChipIDs(p []byte) ([qiprog.MaxChips]qiprog.ChipID, error) {
	var ids [qiprog.MaxChips]qiprog.ChipID
	d := &decoder{b: p}
	for i := range ids {
		ids[i] = qiprog.ChipID{
			Method:   qiprog.IDMethod(d.u8()),
			VendorID: d.u16(),
			DeviceID: d.u32(),
		}
	}
	return ids, d.done()
}
