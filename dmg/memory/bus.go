package memory

import (
	"fmt"
	"log/slog"

	"github.com/kestrelemu/godmg/dmg/addr"
	"github.com/kestrelemu/godmg/dmg/audio"
	"github.com/kestrelemu/godmg/dmg/bit"
	"github.com/kestrelemu/godmg/dmg/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionIO
)

// JoypadKey represents a key on the Gameboy joypad.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// OAMBus is the subset of Bus that the PPU's sprite scan needs.
type OAMBus interface {
	Read(address uint16) byte
}

// PPUDevice is the subset of *video.PPU the Bus drives directly: ticking it
// forward by elapsed cycles, and reporting its current mode back so VRAM/OAM
// accesses can be gated the way the LCD controller gates them on hardware.
type PPUDevice interface {
	Tick(cycles int)
	Mode() byte
}

// PPU mode values, matching the STAT register's bits 1-0.
const (
	ppuModeHBlank   byte = 0
	ppuModeVBlank   byte = 1
	ppuModeOAMScan  byte = 2
	ppuModeTransfer byte = 3
)

// Bus dispatches every memory access the CPU and PPU make across ROM, RAM,
// echo RAM, OAM, and IO registers, and owns every bus-slave component
// (cartridge/MBC, timer, serial, APU, joypad, boot ROM).
type Bus struct {
	cart      *Cartridge
	mbc       MBC
	bootROM   *BootROM
	memory    []byte
	APU       *audio.APU
	ppu       PPUDevice
	regionMap [256]memRegion

	joypadButtons uint8
	joypadDpad    uint8

	serial SerialPort
	timer  Timer
}

// New creates a Bus with no cartridge loaded, equivalent to turning on a
// Game Boy without a cartridge in.
func New() *Bus {
	b := &Bus{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		mbc:           NewRomOnlyMBC(make([]byte, 0x8000)),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	b.serial = serial.NewLogSink(func() { b.RequestInterrupt(addr.SerialInterrupt) })
	b.timer.TimerInterruptHandler = func() { b.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(b)
	return b
}

// NewWithCartridge creates a Bus with the given cartridge loaded, selecting
// its MBC from the header. A cartridge with a mapper this module does not
// implement still loads, running as a RomOnly fallback over the raw image;
// the caller decides what, if anything, to report about that.
func NewWithCartridge(cart *Cartridge) *Bus {
	b := New()
	b.cart = cart

	switch cart.mapper {
	case mapperMBC1:
		b.mbc = NewMBC1(cart.data, cart.hasBattery(), cart.ramBankCount)
	case mapperRomOnly, mapperUnsupported:
		b.mbc = NewRomOnlyMBC(cart.data)
	}

	return b
}

// SetBootROM installs a boot ROM overlay. Passing nil leaves 0x0000-0x00FF
// served by the cartridge from power-on.
func (b *Bus) SetBootROM(rom *BootROM) {
	b.bootROM = rom
}

// SetPPU gives the Bus the PPU it drives and gates VRAM/OAM access against.
// The two are constructed separately (the PPU takes the Bus as a
// dependency) and wired together once both exist.
func (b *Bus) SetPPU(ppu PPUDevice) {
	b.ppu = ppu
}

// Tick advances every bus-slave component that is driven by elapsed cycles
// rather than direct register access: timer, then PPU, matching the order
// an interrupt raised during this step must be visible to the poll that
// follows it, then serial.
func (b *Bus) Tick(cycles int) {
	b.timer.Tick(cycles)
	if b.ppu != nil {
		b.ppu.Tick(cycles)
	}
	if b.serial != nil {
		b.serial.Tick(cycles)
	}
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (b *Bus) SetTimerSeed(seed uint16) {
	b.timer.SetSeed(seed)
}

func initRegionMap(b *Bus) {
	for i := 0x00; i <= 0x7F; i++ {
		b.regionMap[i] = regionROM
	}
	for i := 0x80; i <= 0x9F; i++ {
		b.regionMap[i] = regionVRAM
	}
	for i := 0xA0; i <= 0xBF; i++ {
		b.regionMap[i] = regionExtRAM
	}
	for i := 0xC0; i <= 0xDF; i++ {
		b.regionMap[i] = regionWRAM
	}
	for i := 0xE0; i <= 0xFD; i++ {
		b.regionMap[i] = regionEcho
	}
	b.regionMap[0xFE] = regionOAM
	b.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the given interrupt's bit in the IF register.
func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := b.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		slog.Warn("bus: unknown interrupt requested", "value", fmt.Sprintf("0x%02X", uint8(interrupt)))
		return
	}

	b.Write(addr.IF, bit.Set(bitPos, interruptFlags))
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, b.Read(address))
}

func (b *Bus) SetBit(index uint8, address uint16, set bool) {
	value := b.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	b.Write(address, value)
}

func (b *Bus) Read(address uint16) byte {
	if address <= 0x00FF && b.bootROM.Enabled() {
		return b.bootROM.Read(address)
	}

	switch b.regionMap[address>>8] {
	case regionROM:
		return b.mbc.Read(address)
	case regionVRAM:
		if b.vramBlocked() {
			return 0xFF
		}
		return b.memory[address]
	case regionWRAM:
		return b.memory[address]
	case regionExtRAM:
		return b.mbc.Read(address)
	case regionEcho:
		return b.memory[address-0x2000]
	case regionOAM:
		if address > addr.OAMEnd {
			// 0xFEA0-0xFEFF is unusable on DMG hardware and always reads 0xFF.
			return 0xFF
		}
		if b.oamBlocked() {
			return 0xFF
		}
		return b.memory[address]
	case regionIO:
		return b.readIO(address)
	default:
		return 0xFF
	}
}

// ReadInternal reads VRAM/OAM without PPU-mode gating. It exists for the PPU's
// own rendering passes: gating applies to externally-driven accesses (the
// CPU, DMA), not to the PPU reading the memory it is itself scanning.
func (b *Bus) ReadInternal(address uint16) byte {
	if b.regionMap[address>>8] == regionOAM && address > addr.OAMEnd {
		return 0xFF
	}
	return b.memory[address]
}

// vramBlocked reports whether the PPU's current mode hides VRAM from the
// rest of the system, per the documented Transfer-mode gating.
func (b *Bus) vramBlocked() bool {
	return b.ppu != nil && b.ppu.Mode() == ppuModeTransfer
}

// oamBlocked reports whether the PPU's current mode hides OAM, which it
// does for the whole duration it is using OAM: both SearchOAM and Transfer.
func (b *Bus) oamBlocked() bool {
	if b.ppu == nil {
		return false
	}
	switch b.ppu.Mode() {
	case ppuModeOAMScan, ppuModeTransfer:
		return true
	default:
		return false
	}
}

func (b *Bus) readIO(address uint16) byte {
	switch {
	case address == addr.SB || address == addr.SC:
		return b.serial.Read(address)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		return b.timer.Read(address)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		return b.APU.ReadRegister(address)
	case address == addr.IF:
		// The top 3 bits are unused and always read as 1.
		return b.memory[address] | 0xE0
	case address == addr.BootDisable:
		return b.memory[address] | 0xFE
	default:
		return b.memory[address]
	}
}

func (b *Bus) Write(address uint16, value byte) {
	switch b.regionMap[address>>8] {
	case regionROM:
		b.mbc.Write(address, value)
	case regionVRAM:
		if b.vramBlocked() {
			return
		}
		b.memory[address] = value
	case regionWRAM:
		b.memory[address] = value
	case regionExtRAM:
		b.mbc.Write(address, value)
	case regionEcho:
		b.memory[address-0x2000] = value
	case regionOAM:
		// Writes to the 0xFEA0-0xFEFF unusable range are dropped, as are
		// writes anywhere in OAM while the PPU is scanning or drawing it.
		if address <= addr.OAMEnd && !b.oamBlocked() {
			b.memory[address] = value
		}
	case regionIO:
		b.writeIO(address, value)
	}
}

func (b *Bus) writeIO(address uint16, value byte) {
	switch {
	case address == addr.P1:
		b.writeJoypad(value)
	case address == addr.SB || address == addr.SC:
		b.serial.Write(address, value)
	case address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC:
		b.timer.Write(address, value)
	case address >= addr.AudioStart && address <= addr.AudioEnd:
		b.APU.WriteRegister(address, value)
	case address == addr.IF:
		b.memory[address] = value | 0xE0
	case address == addr.DMA:
		b.runDMA(value)
	case address == addr.BootDisable:
		b.memory[address] = value
		if value == 0x01 {
			b.bootROM.Disable()
		}
	default:
		b.memory[address] = value
	}
}

// runDMA copies 160 bytes from source*0x100 into OAM. Real hardware takes
// 160 M-cycles and blocks CPU access to most memory during the transfer;
// this core performs it instantaneously, which every spec-covered title
// tolerates since the routine is always called from HRAM with a busy-wait.
func (b *Bus) runDMA(source byte) {
	sourceAddr := uint16(source) << 8
	for i := uint16(0); i < 160; i++ {
		b.memory[addr.OAMStart+i] = b.Read(sourceAddr + i)
	}
	b.memory[addr.DMA] = source
}

// updateJoypadRegister recomputes P1's low nibble from whichever button
// group (d-pad, face buttons, or their AND) is currently selected.
func (b *Bus) updateJoypadRegister() {
	p1 := b.memory[addr.P1]
	result := uint8(0b11000000)
	result |= p1 & 0b00110000

	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= b.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= b.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= b.joypadButtons & b.joypadDpad & 0x0F
	default:
		result |= 0x0F
	}

	b.memory[addr.P1] = result
}

func (b *Bus) writeJoypad(value uint8) {
	b.memory[addr.P1] = value & 0b00110000
	b.updateJoypadRegister()
}

func (b *Bus) HandleKeyPress(key JoypadKey) {
	oldButtons, oldDpad := b.joypadButtons, b.joypadDpad

	switch key {
	case JoypadRight:
		b.joypadDpad = bit.Reset(0, b.joypadDpad)
	case JoypadLeft:
		b.joypadDpad = bit.Reset(1, b.joypadDpad)
	case JoypadUp:
		b.joypadDpad = bit.Reset(2, b.joypadDpad)
	case JoypadDown:
		b.joypadDpad = bit.Reset(3, b.joypadDpad)
	case JoypadA:
		b.joypadButtons = bit.Reset(0, b.joypadButtons)
	case JoypadB:
		b.joypadButtons = bit.Reset(1, b.joypadButtons)
	case JoypadSelect:
		b.joypadButtons = bit.Reset(2, b.joypadButtons)
	case JoypadStart:
		b.joypadButtons = bit.Reset(3, b.joypadButtons)
	}

	if oldButtons&^b.joypadButtons|oldDpad&^b.joypadDpad != 0 {
		b.RequestInterrupt(addr.JoypadInterrupt)
	}

	b.updateJoypadRegister()
}

func (b *Bus) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		b.joypadDpad = bit.Set(0, b.joypadDpad)
	case JoypadLeft:
		b.joypadDpad = bit.Set(1, b.joypadDpad)
	case JoypadUp:
		b.joypadDpad = bit.Set(2, b.joypadDpad)
	case JoypadDown:
		b.joypadDpad = bit.Set(3, b.joypadDpad)
	case JoypadA:
		b.joypadButtons = bit.Set(0, b.joypadButtons)
	case JoypadB:
		b.joypadButtons = bit.Set(1, b.joypadButtons)
	case JoypadSelect:
		b.joypadButtons = bit.Set(2, b.joypadButtons)
	case JoypadStart:
		b.joypadButtons = bit.Set(3, b.joypadButtons)
	}

	b.updateJoypadRegister()
}
