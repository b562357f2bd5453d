// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport carries programmer operations over a byte stream,
// usually a serial line to the host.
//
// Every request is a frame
//
//	'Q' op len[2] payload[len] crc[2]
//
// and is answered by exactly one
//
//	'R' op status len[2] payload[len] crc[2]
//
// Multi-byte fields are little endian. The CRC is CRC-16/XMODEM over all
// preceding bytes of the frame.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sigurn/crc16"

	"github.com/u-root/lpcprog/pkg/qiprog"
)

const (
	requestMagic  = 'Q'
	responseMagic = 'R'

	// MaxPayload is the largest payload of a single frame.
	MaxPayload = 4096
)

// Opcode selects the operation of a request.
type Opcode uint8

const (
	OpGetCapabilities       Opcode = 0x00
	OpSetBus                Opcode = 0x01
	OpReadDeviceID          Opcode = 0x03
	OpSetAddress            Opcode = 0x04
	OpSetEraseSize          Opcode = 0x05
	OpSetEraseCommand       Opcode = 0x06
	OpSetWriteCommand       Opcode = 0x07
	OpSetChipSize           Opcode = 0x08
	OpSetCustomEraseCommand Opcode = 0x09
	OpSetCustomWriteCommand Opcode = 0x0a
	OpRead8                 Opcode = 0x30
	OpRead16                Opcode = 0x31
	OpRead32                Opcode = 0x32
	OpWrite8                Opcode = 0x33
	OpWrite16               Opcode = 0x34
	OpWrite32               Opcode = 0x35
	OpRead                  Opcode = 0x40
	OpWrite                 Opcode = 0x41
	OpOpen                  Opcode = 0x50
)

var opcodeNames = map[Opcode]string{
	OpGetCapabilities:       "get_capabilities",
	OpSetBus:                "set_bus",
	OpReadDeviceID:          "read_device_id",
	OpSetAddress:            "set_address",
	OpSetEraseSize:          "set_erase_size",
	OpSetEraseCommand:       "set_erase_command",
	OpSetWriteCommand:       "set_write_command",
	OpSetChipSize:           "set_chip_size",
	OpSetCustomEraseCommand: "set_custom_erase_command",
	OpSetCustomWriteCommand: "set_custom_write_command",
	OpRead8:                 "read8",
	OpRead16:                "read16",
	OpRead32:                "read32",
	OpWrite8:                "write8",
	OpWrite16:               "write16",
	OpWrite32:               "write32",
	OpRead:                  "read",
	OpWrite:                 "write",
	OpOpen:                  "open",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(0x%02x)", uint8(o))
}

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// ErrBadFrame is returned for frames with a wrong checksum or length. The
// stream stays usable after it.
var ErrBadFrame = errors.New("bad frame")

type Request struct {
	Op      Opcode
	Payload []byte
}

type Response struct {
	Op      Opcode
	Status  qiprog.Status
	Payload []byte
}

func appendCRC(b []byte) []byte {
	var c [2]byte
	binary.LittleEndian.PutUint16(c[:], crc16.Checksum(b, crcTable))
	return append(b, c[:]...)
}

func checkCRC(b []byte, sum []byte) bool {
	return crc16.Checksum(b, crcTable) == binary.LittleEndian.Uint16(sum)
}

func WriteRequest(w io.Writer, r Request) error {
	if len(r.Payload) > MaxPayload {
		return fmt.Errorf("%v payload of %d bytes: %w", r.Op, len(r.Payload), qiprog.ErrArgument)
	}
	b := make([]byte, 4, 6+len(r.Payload))
	b[0] = requestMagic
	b[1] = byte(r.Op)
	binary.LittleEndian.PutUint16(b[2:], uint16(len(r.Payload)))
	b = appendCRC(append(b, r.Payload...))
	_, err := w.Write(b)
	return err
}

func WriteResponse(w io.Writer, r Response) error {
	if len(r.Payload) > MaxPayload {
		return fmt.Errorf("%v payload of %d bytes: %w", r.Op, len(r.Payload), qiprog.ErrArgument)
	}
	b := make([]byte, 5, 7+len(r.Payload))
	b[0] = responseMagic
	b[1] = byte(r.Op)
	b[2] = byte(r.Status)
	binary.LittleEndian.PutUint16(b[3:], uint16(len(r.Payload)))
	b = appendCRC(append(b, r.Payload...))
	_, err := w.Write(b)
	return err
}

// syncTo discards input up to and including the next magic byte and
// returns how many bytes were skipped.
func syncTo(r io.Reader, magic byte) (int, error) {
	var b [1]byte
	skipped := 0
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return skipped, err
		}
		if b[0] == magic {
			return skipped, nil
		}
		skipped++
	}
}

// ReadRequest reads the next request. Garbage before a frame is skipped.
// A frame failing its checksum or length limit is consumed whole and
// returned with ErrBadFrame so the opcode can still be answered.
func ReadRequest(r io.Reader) (Request, error) {
	skipped, err := syncTo(r, requestMagic)
	if skipped > 0 {
		log.Warnf("Discarded %d bytes before request", skipped)
	}
	if err != nil {
		return Request{}, err
	}
	hdr := make([]byte, 4, 4+MaxPayload)
	hdr[0] = requestMagic
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return Request{}, err
	}
	req := Request{Op: Opcode(hdr[1])}
	n := int(binary.LittleEndian.Uint16(hdr[2:]))
	if n > MaxPayload {
		if _, err := io.CopyN(io.Discard, r, int64(n)+2); err != nil {
			return req, err
		}
		return req, fmt.Errorf("%v: payload length %d: %w", req.Op, n, ErrBadFrame)
	}
	body := make([]byte, n+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return req, err
	}
	if !checkCRC(append(hdr, body[:n]...), body[n:]) {
		return req, fmt.Errorf("%v: checksum mismatch: %w", req.Op, ErrBadFrame)
	}
	req.Payload = body[:n]
	return req, nil
}

func ReadResponse(r io.Reader) (Response, error) {
	skipped, err := syncTo(r, responseMagic)
	if skipped > 0 {
		log.Warnf("Discarded %d bytes before response", skipped)
	}
	if err != nil {
		return Response{}, err
	}
	hdr := make([]byte, 5, 5+MaxPayload)
	hdr[0] = responseMagic
	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return Response{}, err
	}
	resp := Response{Op: Opcode(hdr[1]), Status: qiprog.Status(hdr[2])}
	n := int(binary.LittleEndian.Uint16(hdr[3:]))
	if n > MaxPayload {
		if _, err := io.CopyN(io.Discard, r, int64(n)+2); err != nil {
			return resp, err
		}
		return resp, fmt.Errorf("%v: payload length %d: %w", resp.Op, n, ErrBadFrame)
	}
	body := make([]byte, n+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return resp, err
	}
	if !checkCRC(append(hdr, body[:n]...), body[n:]) {
		return resp, fmt.Errorf("%v: checksum mismatch: %w", resp.Op, ErrBadFrame)
	}
	resp.Payload = body[:n]
	return resp, nil
}
