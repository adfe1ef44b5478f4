package dmg

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasNoBootROMAndResetRegisters(t *testing.T) {
	e := New()
	assert.Equal(t, uint16(0xFFFE), e.cpu.SP())
	assert.Equal(t, uint16(0x0000), e.cpu.PC())
}

func TestNewWithFilesWithoutBootROMSkipsToPostBootState(t *testing.T) {
	rom := make([]byte, 0x8000)
	e, err := newEmulatorFromROM(t, rom)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0100), e.cpu.PC())
	assert.Equal(t, uint16(0xFFFE), e.cpu.SP())
	assert.Equal(t, uint16(0x01B0), e.cpu.AF())
}

func TestRunFrameAdvancesFrameCount(t *testing.T) {
	rom := make([]byte, 0x8000) // all zero bytes decode as NOP
	e, err := newEmulatorFromROM(t, rom)
	require.NoError(t, err)

	err = e.RunFrame()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.FrameCount())
}

func TestStepTreatsUndefinedOpcodeAsNOP(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0100] = 0xD3 // permanently undefined
	rom[0x0101] = 0x00 // NOP
	e, err := newEmulatorFromROM(t, rom)
	require.NoError(t, err)

	err = e.Step()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0101), e.cpu.PC())

	err = e.Step()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), e.cpu.PC())
}

func newEmulatorFromROM(t *testing.T, rom []byte) (*Emulator, error) {
	t.Helper()
	path := writeTempROM(t, rom)
	return NewWithFiles(path, "")
}

func writeTempROM(t *testing.T, rom []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "rom-*.gb")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(rom)
	require.NoError(t, err)
	return f.Name()
}
