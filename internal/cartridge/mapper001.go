package cartridge

// Mapper001 implements MMC1 (mapper 1).
//
// MMC1 accepts writes to 0x8000-0xFFFF as a serial bitstream: each write
// shifts bit 0 of the value into a 5-bit buffer from the LSB side. On the
// fifth bit the buffer commits to one of four internal registers selected
// by the address the fifth write landed on. A write with bit 7 set resets
// the shift register immediately and forces PRG mode to FixLast, regardless
// of how many bits had been shifted in.
type Mapper001 struct {
	cart *Cartridge

	prgBanks uint8 // number of 16KB PRG banks
	chrBanks uint8 // number of 4KB CHR banks

	mirror MirrorMode

	shiftBuffer uint8
	shiftCount  uint8

	prgBank0 uint8
	prgBank1 uint8
	chrBank0 uint8
	chrBank1 uint8

	chrIndependentBanks bool
	prgMode             mmc1PRGMode
}

type mmc1PRGMode uint8

const (
	mmc1SwitchBoth mmc1PRGMode = iota
	mmc1FixFirst
	mmc1FixLast
)

// NewMapper001 creates a new MMC1 mapper in its power-on state.
func NewMapper001(cart *Cartridge) *Mapper001 {
	prgBanks := uint8(len(cart.prgROM) / 0x4000)
	if prgBanks == 0 {
		prgBanks = 1
	}
	chrBanks := uint8(len(cart.chrROM) / 0x1000)
	if chrBanks == 0 {
		chrBanks = 1
	}

	return &Mapper001{
		cart:     cart,
		prgBanks: prgBanks,
		chrBanks: chrBanks,
		mirror:   cart.mirror,
		prgBank0: 0,
		prgBank1: 1,
		chrBank0: 0,
		chrBank1: 1,
		prgMode:  mmc1FixLast,
	}
}

// ReadPRG reads from PRG RAM ($6000-$7FFF) or the banked PRG ROM window.
func (m *Mapper001) ReadPRG(address uint16) uint8 {
	if address >= 0x6000 && address < 0x8000 {
		return m.cart.sram[address-0x6000]
	}
	if address >= 0x8000 {
		return m.cart.prgROM[m.prgOffset(address)]
	}
	return 0
}

// WritePRG feeds the MMC1 serial shift register, or writes PRG RAM.
func (m *Mapper001) WritePRG(address uint16, value uint8) {
	if address >= 0x6000 && address < 0x8000 {
		m.cart.sram[address-0x6000] = value
		return
	}
	if address < 0x8000 {
		return
	}

	if value&0x80 != 0 {
		m.shiftBuffer = 0
		m.shiftCount = 0
		m.prgMode = mmc1FixLast
		return
	}

	m.shiftBuffer |= (value & 0x01) << m.shiftCount
	m.shiftCount++
	if m.shiftCount == 5 {
		m.commit(address, m.shiftBuffer)
		m.shiftBuffer = 0
		m.shiftCount = 0
	}
}

// commit writes the accumulated 5-bit value into the register selected by
// the address of the fifth serial write.
func (m *Mapper001) commit(address uint16, value uint8) {
	switch {
	case address >= 0x8000 && address <= 0x9FFF:
		m.writeControl(value)
	case address >= 0xA000 && address <= 0xBFFF:
		if m.chrIndependentBanks {
			m.chrBank0 = value
		} else {
			m.chrBank0 = value & 0x1E
		}
	case address >= 0xC000 && address <= 0xDFFF:
		m.chrBank1 = value
	case address >= 0xE000:
		bank := value & 0x0F
		switch m.prgMode {
		case mmc1SwitchBoth:
			m.prgBank0 = bank & 0x0E
		case mmc1FixFirst:
			m.prgBank1 = bank
		case mmc1FixLast:
			m.prgBank0 = bank
		}
	}
}

func (m *Mapper001) writeControl(value uint8) {
	switch value & 0x03 {
	case 0:
		m.mirror = MirrorSingleScreen0
	case 1:
		m.mirror = MirrorSingleScreen1
	case 2:
		m.mirror = MirrorVertical
	case 3:
		m.mirror = MirrorHorizontal
	}

	switch (value >> 2) & 0x03 {
	case 0, 1:
		m.prgMode = mmc1SwitchBoth
	case 2:
		m.prgMode = mmc1FixFirst
	case 3:
		m.prgMode = mmc1FixLast
	}

	m.chrIndependentBanks = value&0x10 != 0
}

// prgOffset resolves a CPU address in 0x8000-0xFFFF to an index into
// cart.prgROM according to the current PRG mode.
func (m *Mapper001) prgOffset(address uint16) int {
	const bankSize = 0x4000
	idx := int(address-0x8000) % bankSize
	window := int(address-0x8000) / bankSize // 0 = low, 1 = high

	if window == 0 {
		if m.prgMode == mmc1FixFirst {
			return idx
		}
		return int(m.prgBank0%m.prgBanks)*bankSize + idx
	}

	switch m.prgMode {
	case mmc1SwitchBoth:
		return int((m.prgBank0+1)%m.prgBanks)*bankSize + idx
	case mmc1FixLast:
		return int(m.prgBanks-1)*bankSize + idx
	default: // FixFirst: high window is independently switchable
		return int(m.prgBank1%m.prgBanks)*bankSize + idx
	}
}

// chrOffset resolves a PPU address in 0x0000-0x1FFF to an index into
// cart.chrROM (ROM or RAM) according to the current CHR banking mode.
func (m *Mapper001) chrOffset(address uint16) int {
	const bankSize = 0x1000
	idx := int(address) % bankSize
	window := int(address) / bankSize // 0 or 1

	var bank uint8
	switch {
	case window == 0:
		bank = m.chrBank0 % m.chrBanks
	case !m.chrIndependentBanks:
		bank = (m.chrBank0 + 1) % m.chrBanks
	default:
		bank = m.chrBank1 % m.chrBanks
	}
	return int(bank)*bankSize + idx
}

// ReadCHR reads from the banked CHR ROM/RAM window.
func (m *Mapper001) ReadCHR(address uint16) uint8 {
	if address >= 0x2000 {
		return 0
	}
	offset := m.chrOffset(address)
	if offset < len(m.cart.chrROM) {
		return m.cart.chrROM[offset]
	}
	return 0
}

// WriteCHR writes to CHR RAM only; CHR ROM writes are ignored.
func (m *Mapper001) WriteCHR(address uint16, value uint8) {
	if address >= 0x2000 || !m.cart.hasCHRRAM {
		return
	}
	offset := m.chrOffset(address)
	if offset < len(m.cart.chrROM) {
		m.cart.chrROM[offset] = value
	}
}

// MirrorVRAM resolves a nametable address using MMC1's live, mutable
// mirroring mode.
func (m *Mapper001) MirrorVRAM(address uint16) uint16 {
	address &= 0x0FFF
	nametable := (address >> 10) & 3
	offset := address & 0x3FF

	switch m.mirror {
	case MirrorVertical:
		if nametable == 1 || nametable == 3 {
			return 0x400 + offset
		}
		return offset
	case MirrorSingleScreen0:
		return offset
	case MirrorSingleScreen1:
		return 0x400 + offset
	case MirrorFourScreen:
		panic("mapper001: four-screen mirroring is not supported by MMC1 hardware")
	default: // MirrorHorizontal
		if nametable >= 2 {
			return 0x400 + offset
		}
		return offset
	}
}

// IRQActive is always false: MMC1 has no IRQ source.
func (m *Mapper001) IRQActive() bool {
	return false
}
