package cpu

import (
	"testing"

	"github.com/kestrelemu/godmg/dmg/addr"
	"github.com/kestrelemu/godmg/dmg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCPU(program ...byte) (*CPU, *memory.Bus) {
	bus := memory.New()
	for i, b := range program {
		bus.Write(0xC000+uint16(i), b)
	}
	c := New(bus)
	c.SetPC(0xC000)
	c.SetSP(0xFFFE)
	return c, bus
}

func TestAFRegisterRoundTrip(t *testing.T) {
	c, _ := newTestCPU()
	c.SetAF(0x1234)

	assert.Equal(t, byte(0x12), c.regs.a)
	assert.Equal(t, byte(0x30), c.regs.f, "low nibble of F is always masked off")
	assert.Equal(t, uint16(0x1230), c.AF())
}

func TestAddOverflowSetsCarryAndHalfCarry(t *testing.T) {
	c, _ := newTestCPU(0x80) // ADD A,B
	c.SetAF(0xFF00)
	c.regs.b = 0x01

	cycles, err := c.step()
	require.NoError(t, err)
	assert.Equal(t, 4, cycles)
	assert.Equal(t, byte(0x00), c.regs.a)
	assert.True(t, c.regs.flag(flagZ))
	assert.True(t, c.regs.flag(flagH))
	assert.True(t, c.regs.flag(flagC))
	assert.False(t, c.regs.flag(flagN))
}

func TestDecUnderflowWraps(t *testing.T) {
	c, _ := newTestCPU(0x05) // DEC B
	c.regs.b = 0x00

	_, err := c.step()
	require.NoError(t, err)
	assert.Equal(t, byte(0xFF), c.regs.b)
	assert.True(t, c.regs.flag(flagN))
	assert.True(t, c.regs.flag(flagH))
}

func TestJRRelativeBackward(t *testing.T) {
	c, _ := newTestCPU()
	c.regs.pc = 0xC010
	c.bus.Write(0xC010, 0x18) // JR
	c.bus.Write(0xC011, byte(int8(-16)))

	_, err := c.step()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xC002), c.regs.pc)
}

func TestSwapIsSelfInverse(t *testing.T) {
	c, _ := newTestCPU(0xCB, 0x37, 0xCB, 0x37) // SWAP A, SWAP A
	c.regs.a = 0xA5

	_, err := c.step()
	require.NoError(t, err)
	assert.Equal(t, byte(0x5A), c.regs.a)

	_, err = c.step()
	require.NoError(t, err)
	assert.Equal(t, byte(0xA5), c.regs.a)
}

func TestAllPrimaryOpcodesDecode(t *testing.T) {
	undefined := map[byte]bool{
		0xD3: true, 0xE3: true, 0xE4: true, 0xF4: true,
		0xDB: true, 0xEB: true, 0xEC: true, 0xFC: true,
		0xDD: true, 0xED: true, 0xFD: true,
	}

	for op := 0; op <= 0xFF; op++ {
		if op == 0xCB {
			// 0xCB is only ever valid as a prefix; as a standalone primary
			// byte it is itself a decoder invariant violation.
			_, err := Decode(byte(op), false)
			assert.Error(t, err)
			continue
		}

		in, err := Decode(byte(op), false)
		assert.NoError(t, err, "byte 0x%02X should decode", op)
		if undefined[byte(op)] {
			assert.Equal(t, KindUndefinedOpcode, in.Kind, "byte 0x%02X is one of the eleven gaps", op)
			continue
		}
		assert.NotEqual(t, KindUndefined, in.Kind, "byte 0x%02X should name a kind", op)
	}
}

func TestUndefinedOpcodeActsAsNOP(t *testing.T) {
	c, _ := newTestCPU(0xD3, 0x00) // undefined gap, then NOP
	pcBefore := c.regs.pc

	cycles, err := c.step()
	require.NoError(t, err)
	assert.Equal(t, 4, cycles)
	assert.Equal(t, pcBefore+1, c.regs.pc)
}

func TestAllPrefixedOpcodesDecode(t *testing.T) {
	for op := 0; op <= 0xFF; op++ {
		in := decodePrefixed(byte(op))
		assert.NotEqual(t, KindUndefined, in.Kind, "CB 0x%02X should name a kind", op)
	}
}

func TestBareCBPrefixNeverStandalone(t *testing.T) {
	// 0xCB is consumed by step() before Decode ever sees it as a primary
	// byte; decodePrimary only rejects a bare 0xCB with a DecodeError,
	// which the fetch loop never triggers since it special-cases the prefix.
	c, _ := newTestCPU(0xCB, 0x00) // CB-prefixed RLC B
	_, err := c.step()
	require.NoError(t, err)
}

func TestInterruptPriorityOrder(t *testing.T) {
	c, bus := newTestCPU(0x00)
	c.ime = true
	bus.Write(addr.IE, 0x1F)
	bus.Write(addr.IF, 0x1F)

	assert.True(t, c.pollInterrupts())
	cycles := c.serviceInterrupt()

	assert.Equal(t, 20, cycles)
	assert.Equal(t, uint16(0x40), c.regs.pc, "VBlank has top priority")
	assert.Equal(t, byte(0xFE), bus.Read(addr.IF))
	assert.False(t, c.ime)
}

func TestHaltWakesOnPendingInterruptEvenWithIMEOff(t *testing.T) {
	c, bus := newTestCPU()
	c.ime = false
	c.halted = true
	bus.Write(addr.IE, 0x01)
	bus.Write(addr.IF, 0x01)

	c.pollInterrupts()
	assert.False(t, c.halted)
}
