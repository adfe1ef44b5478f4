// Package dmg wires the CPU, bus, and PPU together into a runnable Game
// Boy (DMG) emulator core.
package dmg

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/kestrelemu/godmg/dmg/cpu"
	"github.com/kestrelemu/godmg/dmg/memory"
	"github.com/kestrelemu/godmg/dmg/video"
)

const cyclesPerFrame = 70224

// Emulator is the root struct and entry point for running the emulation:
// a CPU holding a Bus holding every other component, matching the
// single-ownership tree the rest of this module is built around.
type Emulator struct {
	cpu *cpu.CPU
	bus *memory.Bus
	ppu *video.PPU

	frameCount uint64
}

// New creates an emulator with no cartridge loaded.
func New() *Emulator {
	return newEmulator(memory.New())
}

// NewWithFiles creates an emulator with the cartridge at cartPath loaded,
// and, if bootROMPath is non-empty, a boot ROM overlay mapped over
// 0x0000-0x00FF until it self-disables. A cartridge file that cannot be
// read degrades to a zero-filled ROM-only cartridge, and a missing or short
// boot ROM file to a zero-filled overlay, each with a logged warning rather
// than a fatal error. With an empty bootROMPath the CPU starts in the
// post-boot-ROM state at 0x0100.
func NewWithFiles(cartPath, bootROMPath string) (*Emulator, error) {
	data, err := os.ReadFile(cartPath)
	if err != nil {
		slog.Warn("dmg: cartridge not loaded, running an empty ROM-only cartridge", "path", cartPath, "error", err)
		data = make([]byte, 0x8000)
	}

	cart, err := memory.NewCartridgeWithData(data)
	var unsupported memory.UnsupportedMapperError
	switch {
	case errors.As(err, &unsupported):
		slog.Warn("dmg: unsupported mapper, running as ROM-only", "error", err)
	case err != nil:
		return nil, fmt.Errorf("dmg: parsing cartridge: %w", err)
	}

	e := newEmulator(memory.NewWithCartridge(cart))

	loadedBootROM := false
	if bootROMPath != "" {
		bootData, err := os.ReadFile(bootROMPath)
		if err != nil {
			slog.Warn("dmg: boot ROM not loaded, using a zero-filled overlay", "path", bootROMPath, "error", err)
		}
		e.bus.SetBootROM(memory.NewBootROM(bootData))
		loadedBootROM = true
	}

	if !loadedBootROM {
		e.skipBootROM()
	}

	return e, nil
}

// skipBootROM seeds the CPU and timer with the documented post-boot-ROM
// state, for running a cartridge directly with no boot ROM image to
// execute the real startup sequence from.
func (e *Emulator) skipBootROM() {
	e.cpu.SetPC(0x0100)
	e.cpu.SetSP(0xFFFE)
	e.cpu.SetAF(0x01B0)
	e.cpu.SetBC(0x0013)
	e.cpu.SetDE(0x00D8)
	e.cpu.SetHL(0x014D)
	e.bus.SetTimerSeed(0xABCC)
}

// NewWithFile creates an emulator with the cartridge at path loaded and no
// boot ROM, equivalent to NewWithFiles(path, "").
func NewWithFile(path string) (*Emulator, error) {
	return NewWithFiles(path, "")
}

// newEmulator wires the CPU to the bus and the bus to the PPU: the PPU takes
// the bus as a read/write dependency, so it is built first and handed to the
// bus afterward, which is what lets Bus.Tick drive it.
func newEmulator(bus *memory.Bus) *Emulator {
	ppu := video.NewPPU(bus)
	bus.SetPPU(ppu)

	return &Emulator{
		cpu: cpu.New(bus),
		bus: bus,
		ppu: ppu,
	}
}

// Step executes a single CPU instruction (or halt tick), returning any
// fatal decode/unsupported error. The bus-step that advances the PPU, and
// the interrupt poll that follows it, both happen inside cpu.Step.
func (e *Emulator) Step() error {
	_, err := e.cpu.Step()
	return err
}

// RunFrame steps the emulator until roughly one frame's worth of cycles
// (70224, the real DMG's dots-per-frame count) has elapsed.
func (e *Emulator) RunFrame() error {
	total := 0
	for total < cyclesPerFrame {
		cycles, err := e.cpu.Step()
		if err != nil {
			return err
		}
		total += cycles
	}
	e.frameCount++
	return nil
}

// Framebuffer returns the PPU's current framebuffer. The caller owns
// reading it between Step/RunFrame calls; the PPU never hands out a copy.
func (e *Emulator) Framebuffer() *video.FrameBuffer {
	return e.ppu.FrameBuffer()
}

// FrameCount reports how many full frames RunFrame has completed.
func (e *Emulator) FrameCount() uint64 {
	return e.frameCount
}

// CPU exposes the CPU for diagnostics and host backends that want to poll
// register state.
func (e *Emulator) CPU() *cpu.CPU {
	return e.cpu
}

func (e *Emulator) PressKey(key memory.JoypadKey) {
	e.bus.HandleKeyPress(key)
}

func (e *Emulator) ReleaseKey(key memory.JoypadKey) {
	e.bus.HandleKeyRelease(key)
}
