// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qiprog

import "fmt"

// Bus is a bitmask of the bus types a programmer can master.
type Bus uint32

const (
	BusISA Bus = 1 << iota
	BusLPC
	BusFWH
	BusSPI
	BusBDM17
	BusBDM35
	BusAUD
)

func (b Bus) String() string {
	names := []string{"ISA", "LPC", "FWH", "SPI", "BDM17", "BDM35", "AUD"}
	s := ""
	for i, n := range names {
		if b&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n
	}
	if s == "" {
		return fmt.Sprintf("bus(%#x)", uint32(b))
	}
	return s
}

// MaxVoltages is the number of voltage slots in Capabilities.
const MaxVoltages = 10

// Capabilities describes what a programmer offers. Voltages lists supported
// levels in millivolts and is terminated by a 0 entry.
type Capabilities struct {
	InstructionSet uint16
	BusMaster      Bus
	MaxDirectData  uint32
	Voltages       [MaxVoltages]uint16
}

// IDMethod tells how a chip was identified.
type IDMethod uint8

const (
	IDInvalid IDMethod = iota
	IDJEDEC
)

func (m IDMethod) String() string {
	switch m {
	case IDInvalid:
		return "invalid"
	case IDJEDEC:
		return "JEDEC"
	}
	return fmt.Sprintf("idmethod(%d)", uint8(m))
}

// MaxChips is the number of chip-ID slots returned by ReadChipID.
const MaxChips = 9

// ChipID is the identification of one attached chip.
type ChipID struct {
	Method   IDMethod
	VendorID uint16
	DeviceID uint32
}

// EraseType is the granularity of an erase operation.
type EraseType uint8

const (
	EraseChip EraseType = iota
	EraseSector
	EraseBlock
)

func (t EraseType) String() string {
	switch t {
	case EraseChip:
		return "chip"
	case EraseSector:
		return "sector"
	case EraseBlock:
		return "block"
	}
	return fmt.Sprintf("erasetype(%d)", uint8(t))
}

// EraseSize configures the size of one erase granularity.
type EraseSize struct {
	Type EraseType
	Size uint32
}

// CommandSet selects the command sequence used for erasing or writing.
type CommandSet uint8

const (
	CommandJEDEC  CommandSet = 0
	CommandCustom CommandSet = 0xff
)

// EraseFlags modifies erase behavior.
type EraseFlags uint16

const (
	// AutoErase erases the affected units before every bulk write.
	AutoErase EraseFlags = 1 << 0
)

// EraseCommand selects how erasing is done.
type EraseCommand struct {
	Cmd   CommandSet
	Type  EraseType
	Flags EraseFlags
}

// WriteCommand selects how bytes are programmed.
type WriteCommand struct {
	Cmd CommandSet
}

// CommandStep is one address/data write of a custom command sequence.
type CommandStep struct {
	Address uint32
	Data    uint8
}
