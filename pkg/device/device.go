// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package device is the programming session on top of a bus driver. It
// tracks the configured chip geometry, translates chip-relative addresses
// to bus addresses, keeps the bulk read and write cursors, and routes
// programming and erasing through the JEDEC command layer.
//
// A Device is owned by one caller and is not safe for concurrent use.
package device

import (
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/u-root/lpcprog/pkg/jedec"
	"github.com/u-root/lpcprog/pkg/logger"
	"github.com/u-root/lpcprog/pkg/metric"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

var (
	log = logger.LogContainer.GetSimpleLogger()

	transferred = metric.Counter(metric.MetricOpts{
		Subsystem: "device",
		Name:      "bytes_total",
		Help:      "Bytes moved by bulk reads and writes",
	}, "direction")

	// Values of the most recently configured session.
	lastChipSize atomic.Uint32
	lastMask     atomic.Uint32

	chipSizeBytes = metric.Gauge(metric.MetricOpts{
		Subsystem: "device",
		Name:      "chip_size_bytes",
		Help:      "Configured chip size, 0 when addressing is physical",
	}, func() float64 { return float64(lastChipSize.Load()) })

	commandMask = metric.Gauge(metric.MetricOpts{
		Subsystem: "device",
		Name:      "command_mask",
		Help:      "Address mask used for JEDEC command cycles",
	}, func() float64 { return float64(lastMask.Load()) })
)

// Option configures a Device.
type Option func(*Device)

// WithWait bounds ready polling after program and erase operations.
func WithWait(w jedec.WaitConfig) Option {
	return func(d *Device) { d.wait = w }
}

// WithProbeBase sets the bus address ReadChipID probes at.
func WithProbeBase(base uint32) Option {
	return func(d *Device) { d.probeBase = base }
}

// WithMask sets the command mask used before any probe.
func WithMask(mask uint32) Option {
	return func(d *Device) { d.mask = mask }
}

type Device struct {
	drv qiprog.Driver
	ops qiprog.Op

	start, end uint32
	readCur    uint32
	writeCur   uint32

	chipSize   uint32
	blockSize  uint32
	sectorSize uint32
	eraseCmd   qiprog.EraseCommand

	mask      uint32
	probeBase uint32
	wait      jedec.WaitConfig
}

var _ jedec.Memory = (*Device)(nil)

// New returns a session over drv. The driver is not opened.
func New(drv qiprog.Driver, opts ...Option) *Device {
	d := &Device{drv: drv, mask: jedec.DefaultMask}
	for _, o := range opts {
		o(d)
	}
	d.ops = sessionOps(drv)
	lastMask.Store(d.mask)
	return d
}

func sessionOps(drv qiprog.Driver) qiprog.Op {
	ops := qiprog.DriverOps(drv)
	ops |= qiprog.OpSetAddress | qiprog.OpSetChipSize | qiprog.OpSetEraseSize |
		qiprog.OpSetEraseCommand | qiprog.OpSetWriteCommand
	if ops.Has(qiprog.OpRead8) && !ops.Has(qiprog.OpRead) {
		ops |= qiprog.OpRead
	}
	if ops.Has(qiprog.OpRead8 | qiprog.OpRead16 | qiprog.OpWrite8) {
		ops |= qiprog.OpReadChipID | qiprog.OpWrite
	}
	return ops
}

// Ops returns the operations available on this device.
func (d *Device) Ops() qiprog.Op {
	return d.ops
}

// Supports reports whether every operation in op is available.
func (d *Device) Supports(op qiprog.Op) bool {
	return d.ops.Has(op)
}

func (d *Device) require(op qiprog.Op) error {
	if !d.ops.Has(op) {
		return fmt.Errorf("%v: %w", op, qiprog.ErrUnimplemented)
	}
	return nil
}

func checkChip(chip uint8) error {
	if chip != 0 {
		return fmt.Errorf("chip %d: only chip 0 is supported: %w", chip, qiprog.ErrArgument)
	}
	return nil
}

// Translate maps a chip-relative address to a bus address. Without a chip
// size, addresses are bus addresses already.
func (d *Device) Translate(addr uint32) uint32 {
	if d.chipSize == 0 {
		return addr
	}
	return ^uint32(0) - d.chipSize + 1 + addr
}

// suspendTranslation makes addresses physical until the returned function
// is called.
func (d *Device) suspendTranslation() (restore func()) {
	size := d.chipSize
	d.chipSize = 0
	return func() { d.chipSize = size }
}

// checkSize fails when n bytes at addr run past the configured chip.
func (d *Device) checkSize(addr, n uint32) error {
	if d.chipSize != 0 && uint64(addr)+uint64(n) > uint64(d.chipSize) {
		return fmt.Errorf("%d bytes at %08x exceed chip size %#x: %w", n, addr, d.chipSize, qiprog.ErrArgument)
	}
	return nil
}

func (d *Device) Open() error {
	return d.drv.Open()
}

func (d *Device) Capabilities() (qiprog.Capabilities, error) {
	c, ok := d.drv.(qiprog.CapabilityReporter)
	if !ok {
		return qiprog.Capabilities{}, d.require(qiprog.OpCapabilities)
	}
	return c.Capabilities()
}

func (d *Device) SetBus(b qiprog.Bus) error {
	s, ok := d.drv.(qiprog.BusSetter)
	if !ok {
		return d.require(qiprog.OpSetBus)
	}
	return s.SetBus(b)
}

// ReadChipID probes for a JEDEC chip at the probe base and remembers the
// command mask it answered to. Only the first entry can be valid.
func (d *Device) ReadChipID() ([qiprog.MaxChips]qiprog.ChipID, error) {
	var ids [qiprog.MaxChips]qiprog.ChipID
	if err := d.require(qiprog.OpReadChipID); err != nil {
		return ids, err
	}
	defer d.suspendTranslation()()

	r, err := jedec.Probe(d, d.probeBase)
	if err != nil {
		return ids, err
	}
	if r.ID.Method == qiprog.IDJEDEC {
		d.mask = r.Mask
		lastMask.Store(r.Mask)
	}
	ids[0] = r.ID
	return ids, nil
}

// Mask returns the command mask in use.
func (d *Device) Mask() uint32 {
	return d.mask
}

// SetAddress sets the bulk transfer range and rewinds both cursors.
func (d *Device) SetAddress(start, end uint32) error {
	if end < start {
		return fmt.Errorf("range %08x-%08x: %w", start, end, qiprog.ErrArgument)
	}
	log.Debugf("Setting address range %08x -> %08x", start, end)
	d.start, d.end = start, end
	d.readCur, d.writeCur = start, start
	return nil
}

// SetChipSize enables chip-relative addressing for a chip of the given
// size mapped at the top of the 32-bit space. Zero disables it.
func (d *Device) SetChipSize(chip uint8, size uint32) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	d.chipSize = size
	lastChipSize.Store(size)
	return nil
}

func (d *Device) SetEraseSize(chip uint8, sizes ...qiprog.EraseSize) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	for _, s := range sizes {
		switch s.Type {
		case qiprog.EraseChip:
		case qiprog.EraseSector:
			d.sectorSize = s.Size
		case qiprog.EraseBlock:
			d.blockSize = s.Size
		default:
			return fmt.Errorf("erase type %v: %w", s.Type, qiprog.ErrArgument)
		}
	}
	return nil
}

func (d *Device) SetEraseCommand(chip uint8, cmd qiprog.EraseCommand) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	if cmd.Cmd != qiprog.CommandJEDEC {
		return fmt.Errorf("erase command set %#x: %w", uint8(cmd.Cmd), qiprog.ErrUnimplemented)
	}
	d.eraseCmd = cmd
	return nil
}

func (d *Device) SetCustomEraseCommand(chip uint8, steps []qiprog.CommandStep) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	return fmt.Errorf("custom erase command: %w", qiprog.ErrUnimplemented)
}

func (d *Device) SetWriteCommand(chip uint8, cmd qiprog.WriteCommand) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	// JEDEC byte program is the only write sequence.
	if cmd.Cmd != qiprog.CommandJEDEC {
		return fmt.Errorf("write command set %#x: %w", uint8(cmd.Cmd), qiprog.ErrUnimplemented)
	}
	return nil
}

func (d *Device) SetCustomWriteCommand(chip uint8, steps []qiprog.CommandStep) error {
	if err := checkChip(chip); err != nil {
		return err
	}
	return fmt.Errorf("custom write command: %w", qiprog.ErrUnimplemented)
}

func (d *Device) Read8(addr uint32) (uint8, error) {
	r, ok := d.drv.(qiprog.Reader8)
	if !ok {
		return 0, d.require(qiprog.OpRead8)
	}
	return r.Read8(d.Translate(addr))
}

func (d *Device) Read16(addr uint32) (uint16, error) {
	r, ok := d.drv.(qiprog.Reader16)
	if !ok {
		return 0, d.require(qiprog.OpRead16)
	}
	return r.Read16(d.Translate(addr))
}

func (d *Device) Read32(addr uint32) (uint32, error) {
	r, ok := d.drv.(qiprog.Reader32)
	if !ok {
		return 0, d.require(qiprog.OpRead32)
	}
	return r.Read32(d.Translate(addr))
}

func (d *Device) Write8(addr uint32, v uint8) error {
	w, ok := d.drv.(qiprog.Writer8)
	if !ok {
		return d.require(qiprog.OpWrite8)
	}
	return w.Write8(d.Translate(addr), v)
}

func (d *Device) Write16(addr uint32, v uint16) error {
	w, ok := d.drv.(qiprog.Writer16)
	if !ok {
		return d.require(qiprog.OpWrite16)
	}
	return w.Write16(d.Translate(addr), v)
}

func (d *Device) Write32(addr uint32, v uint32) error {
	w, ok := d.drv.(qiprog.Writer32)
	if !ok {
		return d.require(qiprog.OpWrite32)
	}
	return w.Write32(d.Translate(addr), v)
}

// Read reads from the read cursor up to the end of the address range and
// advances the cursor. It returns io.EOF once the range is exhausted.
func (d *Device) Read(p []byte) (int, error) {
	if err := d.require(qiprog.OpRead); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if d.readCur >= d.end {
		return 0, io.EOF
	}
	n := d.end - d.readCur
	if uint64(len(p)) < uint64(n) {
		n = uint32(len(p))
	}
	if err := d.checkSize(d.readCur, n); err != nil {
		return 0, err
	}

	addr := d.Translate(d.readCur)
	var err error
	if br, ok := d.drv.(qiprog.BulkReader); ok {
		err = br.ReadBulk(addr, p[:n])
	} else {
		err = d.readBytes(addr, p[:n])
	}
	d.readCur += n
	transferred.WithLabelValues("read").Add(float64(n))
	return int(n), err
}

// readBytes reads byte by byte. Every byte is attempted and all failures
// are combined, like a driver's bulk read.
func (d *Device) readBytes(addr uint32, p []byte) error {
	defer d.suspendTranslation()()
	var err error
	for i := range p {
		v, e := d.Read8(addr + uint32(i))
		p[i] = v
		err = multierr.Append(err, e)
	}
	return err
}

// Write programs p at the write cursor and advances it. When auto-erase is
// enabled, the erase units starting inside the written range are erased
// first. Writing past the range end stops there with io.ErrShortWrite.
func (d *Device) Write(p []byte) (int, error) {
	if err := d.require(qiprog.OpWrite); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if d.writeCur >= d.end {
		return 0, io.ErrShortWrite
	}
	n := d.end - d.writeCur
	if uint64(len(p)) < uint64(n) {
		n = uint32(len(p))
	}
	if err := d.checkSize(d.writeCur, n); err != nil {
		return 0, err
	}

	addr := d.Translate(d.writeCur)
	defer d.suspendTranslation()()

	if d.eraseCmd.Flags&qiprog.AutoErase != 0 {
		if err := d.eraseRange(addr, uint64(n)); err != nil {
			return 0, err
		}
	}
	for i := uint32(0); i < n; i++ {
		if err := jedec.ProgramByte(d, addr+i, p[i], d.mask, d.wait); err != nil {
			d.writeCur += i
			transferred.WithLabelValues("write").Add(float64(i))
			return int(i), fmt.Errorf("program %08x: %w", addr+i, err)
		}
	}
	d.writeCur += n
	transferred.WithLabelValues("write").Add(float64(n))
	if int(n) < len(p) {
		return int(n), io.ErrShortWrite
	}
	return int(n), nil
}

// ChipErase erases the entire chip. Without a chip size the commands go
// to the base where ReadChipID found the chip.
func (d *Device) ChipErase() error {
	if err := d.require(qiprog.OpWrite); err != nil {
		return err
	}
	base := d.probeBase
	if d.chipSize != 0 {
		base = d.Translate(0)
	}
	defer d.suspendTranslation()()
	log.Infof("Erasing chip at %08x", base)
	return jedec.ChipErase(d, base, d.mask, d.wait)
}
