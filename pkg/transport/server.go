// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jpillora/backoff"
	"github.com/tarm/serial"

	"github.com/u-root/lpcprog/pkg/device"
	"github.com/u-root/lpcprog/pkg/logger"
	"github.com/u-root/lpcprog/pkg/metric"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

var (
	log = logger.LogContainer.GetSimpleLogger()

	requests = metric.Counter(metric.MetricOpts{
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Requests handled by opcode and status",
	}, "op", "status")
)

// Server answers requests against one device.
type Server struct {
	dev *device.Device
}

func NewServer(d *device.Device) *Server {
	return &Server{dev: d}
}

// Serve handles requests from rw until the stream ends or ctx is done. A
// cancelled context is noticed between requests only; close the stream to
// interrupt a blocked read.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := ReadRequest(rw)
		var resp Response
		switch {
		case err == nil:
			resp = s.Handle(req)
		case errors.Is(err, ErrBadFrame):
			log.Warnf("Rejecting request: %v", err)
			resp = Response{Op: req.Op, Status: qiprog.StatusArgument}
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			return err
		}
		requests.WithLabelValues(req.Op.String(), resp.Status.String()).Inc()
		if err := WriteResponse(rw, resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// Handle runs one request.
func (s *Server) Handle(req Request) Response {
	p, err := s.dispatch(req.Op, &decoder{b: req.Payload})
	if err != nil {
		log.Debugf("%v: %v", req.Op, err)
		p = nil
	}
	return Response{Op: req.Op, Status: qiprog.StatusOf(err), Payload: p}
}

// maxData is the largest bulk transfer the device advertises, never more
// than one frame holds.
func (s *Server) maxData() uint32 {
	c, err := s.dev.Capabilities()
	if err != nil || c.MaxDirectData == 0 || c.MaxDirectData > MaxPayload {
		return MaxPayload
	}
	return c.MaxDirectData
}

func (s *Server) dispatch(op Opcode, d *decoder) ([]byte, error) {
	e := &encoder{}
	switch op {
	case OpOpen:
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.Open()

	case OpGetCapabilities:
		if err := d.done(); err != nil {
			return nil, err
		}
		c, err := s.dev.Capabilities()
		if err != nil {
			return nil, err
		}
		return encodeCapabilities(c), nil

	case OpSetBus:
		b := qiprog.Bus(d.u32())
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetBus(b)

	case OpReadDeviceID:
		if err := d.done(); err != nil {
			return nil, err
		}
		ids, err := s.dev.ReadChipID()
		if err != nil {
			return nil, err
		}
		return encodeChipIDs(ids), nil

	case OpSetAddress:
		start, end := d.u32(), d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetAddress(start, end)

	case OpSetChipSize:
		chip, size := d.u8(), d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetChipSize(chip, size)

	case OpSetEraseSize:
		chip := d.u8()
		var sizes []qiprog.EraseSize
		for d.remaining() > 0 && d.err == nil {
			sizes = append(sizes, qiprog.EraseSize{Type: qiprog.EraseType(d.u8()), Size: d.u32()})
		}
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetEraseSize(chip, sizes...)

	case OpSetEraseCommand:
		chip := d.u8()
		cmd := qiprog.EraseCommand{
			Cmd:   qiprog.CommandSet(d.u8()),
			Type:  qiprog.EraseType(d.u8()),
			Flags: qiprog.EraseFlags(d.u16()),
		}
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetEraseCommand(chip, cmd)

	case OpSetWriteCommand:
		chip := d.u8()
		cmd := qiprog.WriteCommand{Cmd: qiprog.CommandSet(d.u8())}
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.SetWriteCommand(chip, cmd)

	case OpSetCustomEraseCommand, OpSetCustomWriteCommand:
		chip := d.u8()
		var steps []qiprog.CommandStep
		for d.remaining() > 0 && d.err == nil {
			steps = append(steps, qiprog.CommandStep{Address: d.u32(), Data: d.u8()})
		}
		if err := d.done(); err != nil {
			return nil, err
		}
		if op == OpSetCustomEraseCommand {
			return nil, s.dev.SetCustomEraseCommand(chip, steps)
		}
		return nil, s.dev.SetCustomWriteCommand(chip, steps)

	case OpRead8:
		a := d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		v, err := s.dev.Read8(a)
		return e.u8(v).b, err

	case OpRead16:
		a := d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		v, err := s.dev.Read16(a)
		return e.u16(v).b, err

	case OpRead32:
		a := d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		v, err := s.dev.Read32(a)
		return e.u32(v).b, err

	case OpWrite8:
		a, v := d.u32(), d.u8()
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.Write8(a, v)

	case OpWrite16:
		a, v := d.u32(), d.u16()
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.Write16(a, v)

	case OpWrite32:
		a, v := d.u32(), d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		return nil, s.dev.Write32(a, v)

	case OpRead:
		n := d.u32()
		if err := d.done(); err != nil {
			return nil, err
		}
		if limit := s.maxData(); n > limit {
			return nil, fmt.Errorf("read of %d bytes, at most %d: %w", n, limit, qiprog.ErrArgument)
		}
		buf := make([]byte, n)
		got, err := s.dev.Read(buf)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return buf[:got], err

	case OpWrite:
		if limit := s.maxData(); uint32(len(d.b)) > limit {
			return nil, fmt.Errorf("write of %d bytes, at most %d: %w", len(d.b), limit, qiprog.ErrArgument)
		}
		n, err := s.dev.Write(d.b)
		if errors.Is(err, io.ErrShortWrite) {
			err = nil
		}
		return e.u32(uint32(n)).b, err
	}
	return nil, fmt.Errorf("%v: %w", op, qiprog.ErrUnimplemented)
}

// SerialConfig names the port ServeSerial listens on.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ServeSerial serves s on a serial port, reopening it with backoff when
// it fails, until ctx is done.
func ServeSerial(ctx context.Context, s *Server, c SerialConfig) error {
	b := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		port, err := serial.OpenPort(&serial.Config{Name: c.Port, Baud: c.Baud})
		if err == nil {
			log.Infof("Serving on %s at %d baud", c.Port, c.Baud)
			b.Reset()
			err = serveClosing(ctx, s, port)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := b.Duration()
		log.Warnf("Serial port %s: %v, retrying in %v", c.Port, err, d)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
		}
	}
}

// serveClosing closes rwc when ctx is done so a blocked read returns.
func serveClosing(ctx context.Context, s *Server, rwc io.ReadWriteCloser) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		rwc.Close()
	}()
	err := s.Serve(ctx, rwc)
	if err == nil {
		err = io.EOF
	}
	return err
}
