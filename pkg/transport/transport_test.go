// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	pt "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/u-root/lpcprog/pkg/device"
	"github.com/u-root/lpcprog/pkg/flashsim"
	"github.com/u-root/lpcprog/pkg/lpc"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

func TestCRC(t *testing.T) {
	b := appendCRC([]byte("123456789"))
	if got := b[len(b)-2:]; !bytes.Equal(got, []byte{0xc3, 0x31}) {
		t.Errorf("CRC-16/XMODEM check value = % x, want c3 31", got)
	}
}

func TestRequestFraming(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("noise")
	req := Request{Op: OpSetAddress, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatal(err)
	}
	raw := append([]byte(nil), buf.Bytes()[5:]...)
	if raw[0] != 'Q' || raw[1] != 0x04 || raw[2] != 8 || raw[3] != 0 {
		t.Errorf("header = % x", raw[:4])
	}

	got, err := ReadRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(req, got); diff != "" {
		t.Errorf("request (-want +got):\n%s", diff)
	}

	raw[6] ^= 0xff
	got, err = ReadRequest(bytes.NewReader(raw))
	if !errors.Is(err, ErrBadFrame) {
		t.Errorf("corrupted frame: %v, want ErrBadFrame", err)
	}
	if got.Op != OpSetAddress {
		t.Errorf("corrupted frame op = %v, want set_address", got.Op)
	}

	if err := WriteRequest(&buf, Request{Op: OpWrite, Payload: make([]byte, MaxPayload+1)}); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("oversized payload: %v, want ErrArgument", err)
	}
}

func TestOversizedFrameConsumed(t *testing.T) {
	var inner bytes.Buffer
	if err := WriteRequest(&inner, Request{Op: OpWrite8, Payload: []byte{0, 0, 0, 0, 0x5a}}); err != nil {
		t.Fatal(err)
	}
	payload := make([]byte, MaxPayload+1)
	copy(payload, inner.Bytes())

	var buf bytes.Buffer
	buf.Write([]byte{'Q', byte(OpWrite), 0x01, 0x10})
	buf.Write(payload)
	buf.Write([]byte{0, 0})
	want := Request{Op: OpOpen, Payload: []byte{}}
	if err := WriteRequest(&buf, want); err != nil {
		t.Fatal(err)
	}

	got, err := ReadRequest(&buf)
	if !errors.Is(err, ErrBadFrame) || got.Op != OpWrite {
		t.Fatalf("oversized frame = %v, %v; want write, ErrBadFrame", got.Op, err)
	}
	got, err = ReadRequest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("next request (-want +got):\n%s", diff)
	}
}

func TestResponseFraming(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{Op: OpRead8, Status: qiprog.StatusNoResponse, Payload: []byte{0xff}}
	if err := WriteResponse(&buf, resp); err != nil {
		t.Fatal(err)
	}
	got, err := ReadResponse(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(resp, got); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
}

type session struct {
	chip   *flashsim.Chip
	client *Client
	conn   net.Conn
	done   chan error
}

func startSession(t *testing.T) *session {
	t.Helper()
	return startSessionWith(t, lpc.DefaultDriverOptions)
}

func startSessionWith(t *testing.T, opts lpc.DriverOptions) *session {
	t.Helper()
	chip := flashsim.NewChip(flashsim.SST49LF080A)
	dev := device.New(lpc.NewDriver(flashsim.NewTarget(chip, flashsim.TargetOptions{}), opts))
	srvConn, cliConn := net.Pipe()
	s := &session{chip: chip, client: NewClient(cliConn), conn: cliConn, done: make(chan error, 1)}
	go func() {
		s.done <- NewServer(dev).Serve(context.Background(), srvConn)
		srvConn.Close()
	}()
	t.Cleanup(func() {
		cliConn.Close()
		if err := <-s.done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return s
}

func TestClientServer(t *testing.T) {
	s := startSession(t)
	c := s.client

	if err := c.Open(); err != nil {
		t.Fatalf("Open: %v", err)
	}
	caps, err := c.Capabilities()
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	want := qiprog.Capabilities{BusMaster: qiprog.BusLPC, MaxDirectData: 4096}
	want.Voltages[0] = 3300
	if diff := cmp.Diff(want, caps); diff != "" {
		t.Errorf("capabilities (-want +got):\n%s", diff)
	}
	if err := c.SetBus(qiprog.BusLPC); err != nil {
		t.Errorf("SetBus(LPC): %v", err)
	}
	if err := c.SetBus(qiprog.BusSPI); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("SetBus(SPI): %v, want ErrArgument", err)
	}

	ids, err := c.ReadChipID()
	if err != nil {
		t.Fatalf("ReadChipID: %v", err)
	}
	if ids[0] != (qiprog.ChipID{Method: qiprog.IDJEDEC, VendorID: 0xbf, DeviceID: 0x5b}) {
		t.Errorf("ids[0] = %+v", ids[0])
	}

	for _, err := range []error{
		c.SetChipSize(0, 1<<20),
		c.SetEraseSize(0, qiprog.EraseSize{Type: qiprog.EraseSector, Size: 0x1000}),
		c.SetEraseCommand(0, qiprog.EraseCommand{Type: qiprog.EraseSector, Flags: qiprog.AutoErase}),
		c.SetWriteCommand(0, qiprog.WriteCommand{}),
		c.SetAddress(0x3000, 0x3008),
	} {
		if err != nil {
			t.Fatal(err)
		}
	}
	data := []byte("qiprog!!")
	if n, err := c.Write(data); n != len(data) || err != nil {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if err := c.SetAddress(0x3000, 0x3008); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("read back %q, want %q", got, data)
	}
	if !bytes.Equal(s.chip.Dump(0x3000, 8), data) {
		t.Errorf("chip holds %q", s.chip.Dump(0x3000, 8))
	}

	if v, err := c.Read16(0x3000); err != nil || v != 0x6971 {
		t.Errorf("Read16 = %04x, %v; want 6971", v, err)
	}
	if v, err := c.Read32(0x3004); err != nil || v != 0x2121676f {
		t.Errorf("Read32 = %08x, %v; want 2121676f", v, err)
	}
	if err := c.SetChipSize(1, 0); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("SetChipSize(1): %v, want ErrArgument", err)
	}
	if err := c.SetCustomEraseCommand(0, []qiprog.CommandStep{{Address: 0x5555, Data: 0xaa}}); !errors.Is(err, qiprog.ErrUnimplemented) {
		t.Errorf("SetCustomEraseCommand: %v, want ErrUnimplemented", err)
	}
	if _, err := c.Do(Opcode(0x7f), nil); !errors.Is(err, qiprog.ErrUnimplemented) {
		t.Errorf("unknown opcode: %v, want ErrUnimplemented", err)
	}
	if _, err := c.Do(OpSetAddress, []byte{1, 2, 3}); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("short payload: %v, want ErrArgument", err)
	}
}

func TestDirectDataLimit(t *testing.T) {
	s := startSessionWith(t, lpc.DriverOptions{MaxDirectData: 16, Voltages: []uint16{3300}})
	c := s.client
	if err := c.SetAddress(0x100, 0x140); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(OpRead, (&encoder{}).u32(17).b); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("read above the advertised size: %v, want ErrArgument", err)
	}
	if _, err := c.Do(OpWrite, make([]byte, 17)); !errors.Is(err, qiprog.ErrArgument) {
		t.Errorf("write above the advertised size: %v, want ErrArgument", err)
	}
	if p, err := c.Do(OpRead, (&encoder{}).u32(16).b); err != nil || len(p) != 16 {
		t.Errorf("read of the advertised size = %d bytes, %v", len(p), err)
	}

	caps, err := c.Capabilities()
	if err != nil {
		t.Fatal(err)
	}
	if caps.MaxDirectData != 16 {
		t.Fatalf("MaxDirectData = %d, want 16", caps.MaxDirectData)
	}
	data := bytes.Repeat([]byte{0x3c}, 40)
	if err := c.SetAddress(0x1000, 0x1028); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Write(data); n != len(data) || err != nil {
		t.Fatalf("chunked Write = %d, %v", n, err)
	}
	if err := c.SetAddress(0x1000, 0x1028); err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(c)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("chunked read back % x, %v", got, err)
	}
	if !bytes.Equal(s.chip.Dump(0x1000, 40), data) {
		t.Errorf("chip holds % x", s.chip.Dump(0x1000, 40))
	}
}

func TestServerRejectsBadFrame(t *testing.T) {
	s := startSession(t)
	before := pt.ToFloat64(requests.WithLabelValues("open", "argument error"))

	var buf bytes.Buffer
	if err := WriteRequest(&buf, Request{Op: OpOpen}); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0x5a
	go s.conn.Write(raw)

	resp, err := ReadResponse(s.conn)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Op != OpOpen || resp.Status != qiprog.StatusArgument {
		t.Errorf("response = %+v, want argument error for open", resp)
	}
	if got := pt.ToFloat64(requests.WithLabelValues("open", "argument error")); got != before+1 {
		t.Errorf("rejected counter = %v, want %v", got, before+1)
	}

	// The stream is still in sync.
	if err := s.client.Open(); err != nil {
		t.Errorf("Open after bad frame: %v", err)
	}
}
