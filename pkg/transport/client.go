// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"fmt"
	"io"
	"sync"

	"github.com/u-root/lpcprog/pkg/qiprog"
)

// Client issues requests over a stream and waits for each answer.
type Client struct {
	mu sync.Mutex
	rw io.ReadWriter

	// maxData is the device's advertised transfer size, once known.
	maxData uint32
}

func NewClient(rw io.ReadWriter) *Client {
	return &Client{rw: rw}
}

// Do sends one request and returns the payload of its response. A non
// success status is returned as the matching qiprog error.
func (c *Client) Do(op Opcode, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteRequest(c.rw, Request{Op: op, Payload: payload}); err != nil {
		return nil, err
	}
	resp, err := ReadResponse(c.rw)
	if err != nil {
		return nil, err
	}
	if resp.Op != op {
		return nil, fmt.Errorf("response for %v to %v request", resp.Op, op)
	}
	if err := resp.Status.Err(); err != nil {
		return resp.Payload, fmt.Errorf("%v: %w", op, err)
	}
	return resp.Payload, nil
}

func (c *Client) Open() error {
	_, err := c.Do(OpOpen, nil)
	return err
}

func (c *Client) Capabilities() (qiprog.Capabilities, error) {
	p, err := c.Do(OpGetCapabilities, nil)
	if err != nil {
		return qiprog.Capabilities{}, err
	}
	caps, err := decodeCapabilities(p)
	if err == nil {
		c.mu.Lock()
		c.maxData = caps.MaxDirectData
		c.mu.Unlock()
	}
	return caps, err
}

// chunk is the largest bulk transfer per request. It follows the last
// Capabilities answer and is at most MaxPayload.
func (c *Client) chunk() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxData == 0 || c.maxData > MaxPayload {
		return MaxPayload
	}
	return int(c.maxData)
}

func (c *Client) SetBus(b qiprog.Bus) error {
	_, err := c.Do(OpSetBus, (&encoder{}).u32(uint32(b)).b)
	return err
}

func (c *Client) ReadChipID() ([qiprog.MaxChips]qiprog.ChipID, error) {
	p, err := c.Do(OpReadDeviceID, nil)
	if err != nil {
		return [qiprog.MaxChips]qiprog.ChipID{}, err
	}
	return decodeChipIDs(p)
}

func (c *Client) SetAddress(start, end uint32) error {
	_, err := c.Do(OpSetAddress, (&encoder{}).u32(start).u32(end).b)
	return err
}

func (c *Client) SetChipSize(chip uint8, size uint32) error {
	_, err := c.Do(OpSetChipSize, (&encoder{}).u8(chip).u32(size).b)
	return err
}

func (c *Client) SetEraseSize(chip uint8, sizes ...qiprog.EraseSize) error {
	e := (&encoder{}).u8(chip)
	for _, s := range sizes {
		e.u8(uint8(s.Type)).u32(s.Size)
	}
	_, err := c.Do(OpSetEraseSize, e.b)
	return err
}

func (c *Client) SetEraseCommand(chip uint8, cmd qiprog.EraseCommand) error {
	e := (&encoder{}).u8(chip).u8(uint8(cmd.Cmd)).u8(uint8(cmd.Type)).u16(uint16(cmd.Flags))
	_, err := c.Do(OpSetEraseCommand, e.b)
	return err
}

func (c *Client) SetWriteCommand(chip uint8, cmd qiprog.WriteCommand) error {
	_, err := c.Do(OpSetWriteCommand, (&encoder{}).u8(chip).u8(uint8(cmd.Cmd)).b)
	return err
}

func (c *Client) SetCustomEraseCommand(chip uint8, steps []qiprog.CommandStep) error {
	return c.customCommand(OpSetCustomEraseCommand, chip, steps)
}

func (c *Client) SetCustomWriteCommand(chip uint8, steps []qiprog.CommandStep) error {
	return c.customCommand(OpSetCustomWriteCommand, chip, steps)
}

func (c *Client) customCommand(op Opcode, chip uint8, steps []qiprog.CommandStep) error {
	e := (&encoder{}).u8(chip)
	for _, s := range steps {
		e.u32(s.Address).u8(s.Data)
	}
	_, err := c.Do(op, e.b)
	return err
}

func (c *Client) Read8(addr uint32) (uint8, error) {
	p, err := c.Do(OpRead8, (&encoder{}).u32(addr).b)
	if err != nil {
		return 0, err
	}
	d := &decoder{b: p}
	return d.u8(), d.done()
}

func (c *Client) Read16(addr uint32) (uint16, error) {
	p, err := c.Do(OpRead16, (&encoder{}).u32(addr).b)
	if err != nil {
		return 0, err
	}
	d := &decoder{b: p}
	return d.u16(), d.done()
}

func (c *Client) Read32(addr uint32) (uint32, error) {
	p, err := c.Do(OpRead32, (&encoder{}).u32(addr).b)
	if err != nil {
		return 0, err
	}
	d := &decoder{b: p}
	return d.u32(), d.done()
}

func (c *Client) Write8(addr uint32, v uint8) error {
	_, err := c.Do(OpWrite8, (&encoder{}).u32(addr).u8(v).b)
	return err
}

func (c *Client) Write16(addr uint32, v uint16) error {
	_, err := c.Do(OpWrite16, (&encoder{}).u32(addr).u16(v).b)
	return err
}

func (c *Client) Write32(addr uint32, v uint32) error {
	_, err := c.Do(OpWrite32, (&encoder{}).u32(addr).u32(v).b)
	return err
}

// Read fills p from the device's read cursor, one request per chunk. It
// returns io.EOF once the address range is used up.
func (c *Client) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n := len(p)
	if limit := c.chunk(); n > limit {
		n = limit
	}
	data, err := c.Do(OpRead, (&encoder{}).u32(uint32(n)).b)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

// Write programs p at the device's write cursor, one request per chunk.
func (c *Client) Write(p []byte) (int, error) {
	total := 0
	limit := c.chunk()
	for len(p) > 0 {
		n := len(p)
		if n > limit {
			n = limit
		}
		data, err := c.Do(OpWrite, p[:n])
		if err != nil {
			return total, err
		}
		d := &decoder{b: data}
		w := int(d.u32())
		if err := d.done(); err != nil {
			return total, err
		}
		total += w
		if w < n {
			return total, io.ErrShortWrite
		}
		p = p[n:]
	}
	return total, nil
}
