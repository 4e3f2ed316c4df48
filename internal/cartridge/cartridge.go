// Package cartridge implements ROM loading and parsing for NES cartridges.
package cartridge

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/pkg/errors"
)

// Cartridge represents a NES cartridge
type Cartridge struct {
	// ROM data
	prgROM []uint8
	chrROM []uint8

	// Mapper information
	mapperID uint8
	mapper   Mapper

	// Mirroring mode set from the header; mappers that support mutable
	// mirroring (MMC1) keep their own copy and ignore this after construction.
	mirror MirrorMode

	// Battery-backed RAM
	hasBattery bool
	sram       [0x2000]uint8

	// CHR memory type
	hasCHRRAM bool
}

// MirrorMode represents nametable mirroring mode
type MirrorMode uint8

const (
	MirrorHorizontal MirrorMode = iota
	MirrorVertical
	MirrorSingleScreen0
	MirrorSingleScreen1
	MirrorFourScreen
)

// Mapper is the per-cartridge address-translation and bank-switching contract.
// It is a closed, tagged-variant set (Mapper000, Mapper001) rather than an
// open-ended plugin registry.
type Mapper interface {
	ReadPRG(address uint16) uint8
	WritePRG(address uint16, value uint8)
	ReadCHR(address uint16) uint8
	WriteCHR(address uint16, value uint8)

	// MirrorVRAM translates a PPU nametable address into a 0-2047 VRAM index,
	// honoring the mapper's current (possibly mutable) mirroring mode.
	MirrorVRAM(address uint16) uint16

	// IRQActive reports whether the mapper is currently asserting an IRQ.
	// NROM and MMC1 never generate one; the method exists so the bus can
	// treat every mapper uniformly without a type switch.
	IRQActive() bool
}

// iNES header structure
type iNESHeader struct {
	Magic      [4]uint8
	PRGROMSize uint8 // in 16KB units
	CHRROMSize uint8 // in 8KB units
	Flags6     uint8
	Flags7     uint8
	PRGRAMSize uint8
	TVSystem1  uint8
	TVSystem2  uint8
	Padding    [5]uint8
}

// LoadFromFile loads a cartridge from an iNES file
func LoadFromFile(filename string) (*Cartridge, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "open rom %s", filename)
	}
	defer file.Close()

	cart, err := LoadFromReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "load rom %s", filename)
	}
	return cart, nil
}

// LoadFromReader loads a cartridge from an io.Reader
func LoadFromReader(r io.Reader) (*Cartridge, error) {
	var header iNESHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read iNES header")
	}

	if string(header.Magic[:]) != "NES\x1A" {
		return nil, errors.New("invalid iNES file: bad magic")
	}

	if header.Flags7&0x0C == 0x08 {
		return nil, errors.New("NES 2.0 headers are not supported")
	}

	if header.PRGROMSize == 0 {
		return nil, errors.New("invalid ROM: PRG ROM size cannot be zero")
	}

	mapperID := (header.Flags7 & 0xF0) | (header.Flags6 >> 4)
	if mapperID != 0 && mapperID != 1 {
		return nil, errors.Errorf("unsupported mapper %d", mapperID)
	}

	cart := &Cartridge{
		mapperID:   mapperID,
		hasBattery: (header.Flags6 & 0x02) != 0,
	}

	switch {
	case (header.Flags6 & 0x08) != 0:
		cart.mirror = MirrorFourScreen
	case (header.Flags6 & 0x01) != 0:
		cart.mirror = MirrorVertical
	default:
		cart.mirror = MirrorHorizontal
	}

	if (header.Flags6 & 0x04) != 0 {
		trainer := make([]uint8, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return nil, errors.Wrap(err, "read trainer")
		}
	}

	prgSize := int(header.PRGROMSize) * 16384
	cart.prgROM = make([]uint8, prgSize)
	if _, err := io.ReadFull(r, cart.prgROM); err != nil {
		return nil, errors.Wrap(err, "read PRG ROM")
	}

	chrSize := int(header.CHRROMSize) * 8192
	if chrSize > 0 {
		cart.chrROM = make([]uint8, chrSize)
		if _, err := io.ReadFull(r, cart.chrROM); err != nil {
			return nil, errors.Wrap(err, "read CHR ROM")
		}
	} else {
		cart.chrROM = make([]uint8, 8192)
		cart.hasCHRRAM = true
	}

	cart.mapper = createMapper(mapperID, cart)

	return cart, nil
}

// ReadPRG reads from PRG ROM/RAM
func (c *Cartridge) ReadPRG(address uint16) uint8 {
	return c.mapper.ReadPRG(address)
}

// WritePRG writes to PRG ROM/RAM
func (c *Cartridge) WritePRG(address uint16, value uint8) {
	c.mapper.WritePRG(address, value)
}

// ReadCHR reads from CHR ROM/RAM
func (c *Cartridge) ReadCHR(address uint16) uint8 {
	return c.mapper.ReadCHR(address)
}

// WriteCHR writes to CHR ROM/RAM
func (c *Cartridge) WriteCHR(address uint16, value uint8) {
	c.mapper.WriteCHR(address, value)
}

// MirrorVRAM delegates to the mapper so callers always see the live,
// possibly-mutated mirroring mode (required for MMC1).
func (c *Cartridge) MirrorVRAM(address uint16) uint16 {
	return c.mapper.MirrorVRAM(address)
}

// IRQActive reports the mapper's current IRQ line state.
func (c *Cartridge) IRQActive() bool {
	return c.mapper.IRQActive()
}

// GetMirrorMode returns the cartridge's header-declared mirroring mode.
// For MMC1 carts this is only the power-on value; use MirrorVRAM for the
// live mode.
func (c *Cartridge) GetMirrorMode() MirrorMode {
	return c.mirror
}

// createMapper constructs the mapper implementation for the given iNES
// mapper number. Called only with IDs already validated by LoadFromReader.
func createMapper(id uint8, cart *Cartridge) Mapper {
	switch id {
	case 1:
		return NewMapper001(cart)
	default:
		return NewMapper000(cart)
	}
}

// MockCartridge implements CartridgeInterface for testing
type MockCartridge struct {
	prgROM    [0x8000]uint8 // 32KB PRG ROM
	chrROM    [0x2000]uint8 // 8KB CHR ROM
	prgRAM    [0x2000]uint8 // 8KB PRG RAM
	chrRAM    [0x2000]uint8 // 8KB CHR RAM
	mirroring MirrorMode

	// Tracking for tests
	prgReads  []uint16
	prgWrites []uint16
	chrReads  []uint16
	chrWrites []uint16
}

// NewMockCartridge creates a new mock cartridge for testing
func NewMockCartridge() *MockCartridge {
	return &MockCartridge{
		mirroring: MirrorHorizontal,
		prgReads:  make([]uint16, 0),
		prgWrites: make([]uint16, 0),
		chrReads:  make([]uint16, 0),
		chrWrites: make([]uint16, 0),
	}
}

// ReadPRG implements memory.CartridgeInterface
func (c *MockCartridge) ReadPRG(address uint16) uint8 {
	c.prgReads = append(c.prgReads, address)
	index := (address - 0x8000) % uint16(len(c.prgROM))
	if address >= 0x8000 {
		index = address - 0x8000
		if index >= 0x4000 && len(c.prgROM) == 0x4000 {
			index = index % 0x4000
		}
	}
	return c.prgROM[index]
}

// WritePRG implements memory.CartridgeInterface
func (c *MockCartridge) WritePRG(address uint16, value uint8) {
	c.prgWrites = append(c.prgWrites, address)
	if address >= 0x6000 && address < 0x8000 {
		c.prgRAM[address-0x6000] = value
	}
}

// ReadCHR implements memory.CartridgeInterface
func (c *MockCartridge) ReadCHR(address uint16) uint8 {
	c.chrReads = append(c.chrReads, address)
	if address < 0x2000 {
		return c.chrROM[address]
	}
	return 0
}

// WriteCHR implements memory.CartridgeInterface
func (c *MockCartridge) WriteCHR(address uint16, value uint8) {
	c.chrWrites = append(c.chrWrites, address)
	if address < 0x2000 {
		c.chrRAM[address] = value
	}
}

// MirrorVRAM implements a fixed horizontal/vertical mirror for tests.
func (c *MockCartridge) MirrorVRAM(address uint16) uint16 {
	address &= 0x0FFF
	nametable := (address >> 10) & 3
	offset := address & 0x3FF
	if c.mirroring == MirrorVertical {
		if nametable == 1 || nametable == 3 {
			return 0x400 + offset
		}
		return offset
	}
	if nametable >= 2 {
		return 0x400 + offset
	}
	return offset
}

// IRQActive always returns false for the mock cartridge.
func (c *MockCartridge) IRQActive() bool {
	return false
}

// LoadPRG loads data into PRG ROM
func (c *MockCartridge) LoadPRG(data []uint8) {
	copy(c.prgROM[:], data)
}

// LoadCHR loads data into CHR ROM
func (c *MockCartridge) LoadCHR(data []uint8) {
	copy(c.chrROM[:], data)
}

// SetMirroring sets the nametable mirroring mode
func (c *MockCartridge) SetMirroring(mode MirrorMode) {
	c.mirroring = mode
}

// GetMirroring returns the current mirroring mode
func (c *MockCartridge) GetMirroring() MirrorMode {
	return c.mirroring
}

// ClearLogs clears all access logs
func (c *MockCartridge) ClearLogs() {
	c.prgReads = c.prgReads[:0]
	c.prgWrites = c.prgWrites[:0]
	c.chrReads = c.chrReads[:0]
	c.chrWrites = c.chrWrites[:0]
}
