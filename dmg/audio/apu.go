package audio

import "github.com/kestrelemu/godmg/dmg/addr"

// waveRAMSize is the size of wave pattern RAM in bytes (16 bytes = 32 nibbles).
const waveRAMSize = 16

// APU is a passive model of the DMG Audio Processing Unit's register file.
// Signal generation - mixing four channels down to a stereo sample stream -
// is not implemented; the bus only needs NR10-NR52 and wave RAM to read back
// whatever was last written, the way every other peripheral stub on this
// bus does, so that ROMs probing APU state never see APU accesses silently
// swallowed.
type APU struct {
	registers [addr.AudioEnd - addr.AudioStart + 1]uint8
	waveRAM   [waveRAMSize]uint8
}

// New returns an APU with NR52 at its DMG power-on value 0xF1 (master
// enable set); every other register and wave RAM start at zero.
func New() *APU {
	a := &APU{}
	a.registers[addr.NR52-addr.AudioStart] = 0xF1
	return a
}

// ReadRegister returns the last value written to an NR1x-NR5x register or
// wave RAM byte. NR52 bit 7 (master on/off) is the only bit with documented
// side effects and those belong to the write side; reads here are plain
// pass-through.
func (a *APU) ReadRegister(address uint16) uint8 {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		return a.waveRAM[address-addr.WaveRAMStart]
	}
	if address >= addr.AudioStart && address <= addr.AudioEnd {
		return a.registers[address-addr.AudioStart]
	}
	return 0xFF
}

// WriteRegister stores a value written to an NR1x-NR5x register or wave
// RAM byte. No channel state machine observes it.
func (a *APU) WriteRegister(address uint16, value uint8) {
	if address >= addr.WaveRAMStart && address <= addr.WaveRAMEnd {
		a.waveRAM[address-addr.WaveRAMStart] = value
		return
	}
	if address >= addr.AudioStart && address <= addr.AudioEnd {
		a.registers[address-addr.AudioStart] = value
	}
}

// Enabled reports the master audio on/off bit (NR52 bit 7), exposed for
// diagnostics even though it gates nothing in this model.
func (a *APU) Enabled() bool {
	return a.registers[addr.NR52-addr.AudioStart]&0x80 != 0
}
