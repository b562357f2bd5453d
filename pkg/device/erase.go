// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/u-root/lpcprog/pkg/jedec"
	"github.com/u-root/lpcprog/pkg/qiprog"
)

// eraseUnit picks the erase granularity. Blocks win over sectors.
func (d *Device) eraseUnit() (uint32, qiprog.EraseType, error) {
	switch {
	case d.blockSize != 0:
		return d.blockSize, qiprog.EraseBlock, nil
	case d.sectorSize != 0:
		return d.sectorSize, qiprog.EraseSector, nil
	}
	return 0, 0, fmt.Errorf("no erase size configured: %w", qiprog.ErrArgument)
}

// EraseRange erases every unit whose base lies in the bus address range
// [start, end). A unit that begins before start is left alone even if the
// range reaches into it.
func (d *Device) EraseRange(start, end uint32) error {
	if err := d.require(qiprog.OpWrite); err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("erase range %08x-%08x: %w", start, end, qiprog.ErrArgument)
	}
	defer d.suspendTranslation()()
	return d.eraseRange(start, uint64(end-start))
}

// Erase erases the units starting within n bytes at the chip-relative
// address start. Unlike EraseRange it can reach the last unit of a chip
// mapped at the top of the address space.
func (d *Device) Erase(start, n uint32) error {
	if err := d.require(qiprog.OpWrite); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("empty erase at %08x: %w", start, qiprog.ErrArgument)
	}
	if err := d.checkSize(start, n); err != nil {
		return err
	}
	addr := d.Translate(start)
	defer d.suspendTranslation()()
	return d.eraseRange(addr, uint64(n))
}

// eraseRange takes a length so a range may end at the top of the 32-bit
// space. Translation must be suspended.
func (d *Device) eraseRange(start uint32, n uint64) error {
	unit, typ, err := d.eraseUnit()
	if err != nil {
		return err
	}
	last := uint64(start) + n - 1
	for i := uint64(start) / uint64(unit); i <= last/uint64(unit); i++ {
		base := i * uint64(unit)
		if base < uint64(start) {
			continue
		}
		switch typ {
		case qiprog.EraseBlock:
			log.Errorf("Block erase at %08x is not implemented", base)
			return fmt.Errorf("block erase at %08x: %w", base, qiprog.ErrUnimplemented)
		case qiprog.EraseSector:
			log.Debugf("Erasing sector at %08x", base)
			if err := jedec.SectorErase(d, uint32(base), d.mask, d.wait); err != nil {
				return fmt.Errorf("erase sector %08x: %w", base, err)
			}
		}
	}
	return nil
}
