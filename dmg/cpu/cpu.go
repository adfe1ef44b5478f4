package cpu

import (
	"github.com/kestrelemu/godmg/dmg/addr"
)

// Bus is the subset of the memory bus the CPU needs: byte-addressed
// read/write plus interrupt request flagging.
type Bus interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	RequestInterrupt(interrupt addr.Interrupt)
	Tick(cycles int)
}

// interrupt vector table, in priority order (lowest bit wins ties).
var interruptVectors = [5]struct {
	bit    uint8
	flag   addr.Interrupt
	vector uint16
}{
	{0, addr.VBlankInterrupt, 0x40},
	{1, addr.LCDSTATInterrupt, 0x48},
	{2, addr.TimerInterrupt, 0x50},
	{3, addr.SerialInterrupt, 0x58},
	{4, addr.JoypadInterrupt, 0x60},
}

// CPU implements the Sharp LR35902 fetch-decode-execute cycle against a Bus.
type CPU struct {
	regs registers
	bus  Bus

	ime     bool
	halted  bool
	stopped bool

	instructionCount uint64
}

// New returns a CPU wired to bus, with registers at their documented
// hardware-reset state: SP = 0xFFFE, everything else zero, interrupts
// disabled. PC starts at 0x0000, where the boot ROM overlay (if any) takes
// over until it disables itself; a caller skipping the boot ROM is
// responsible for seeding the post-boot register state itself.
func New(bus Bus) *CPU {
	c := &CPU{bus: bus}
	c.regs.sp = 0xFFFE
	return c
}

// PC exposes the program counter for diagnostics and the debugger.
func (c *CPU) PC() uint16 { return c.regs.pc }

// SetPC forces the program counter, used when seeding post-boot-ROM state.
func (c *CPU) SetPC(pc uint16) { c.regs.pc = pc }

// SP exposes the stack pointer for diagnostics.
func (c *CPU) SP() uint16 { return c.regs.sp }

// SetSP forces the stack pointer.
func (c *CPU) SetSP(sp uint16) { c.regs.sp = sp }

// AF, BC, DE, HL expose the register pairs for diagnostics and testing.
func (c *CPU) AF() uint16 { return c.regs.getAF() }
func (c *CPU) BC() uint16 { return c.regs.getBC() }
func (c *CPU) DE() uint16 { return c.regs.getDE() }
func (c *CPU) HL() uint16 { return c.regs.getHL() }

func (c *CPU) SetAF(v uint16) { c.regs.setAF(v) }
func (c *CPU) SetBC(v uint16) { c.regs.setBC(v) }
func (c *CPU) SetDE(v uint16) { c.regs.setDE(v) }
func (c *CPU) SetHL(v uint16) { c.regs.setHL(v) }

// Halted reports whether the CPU is currently in the HALT state.
func (c *CPU) Halted() bool { return c.halted }

// InstructionCount returns the number of instructions executed so far,
// useful for debug UIs and completion-detection heuristics.
func (c *CPU) InstructionCount() uint64 { return c.instructionCount }

// Step executes exactly one instruction (or, if halted, advances time
// without fetching), then ticks the bus and polls for interrupts. It
// returns the number of cycles consumed and any fatal decode/unsupported
// error encountered.
//
// Ordering matches the strict per-step contract: fetch -> execute ->
// bus-step (timer, then whatever the caller's Tick wires in) -> interrupt
// poll. An interrupt raised during this step's bus-step is serviced at the
// end of the same step, and IME changes from EI take effect immediately
// rather than after a one-instruction delay.
func (c *CPU) Step() (int, error) {
	var cycles int

	if c.halted {
		cycles = 4
	} else {
		n, err := c.step()
		if err != nil {
			return 0, err
		}
		cycles = n
		c.instructionCount++
	}

	c.bus.Tick(cycles)

	if c.pollInterrupts() {
		serviced := c.serviceInterrupt()
		cycles += serviced
	}

	return cycles, nil
}

func (c *CPU) step() (int, error) {
	opcode := c.fetch()

	if opcode == 0xCB {
		cbOpcode := c.fetch()
		in, _ := Decode(cbOpcode, true)
		return c.execute(in)
	}

	in, err := Decode(opcode, false)
	if err != nil {
		return 0, err
	}
	return c.execute(in)
}

func (c *CPU) fetch() byte {
	b := c.bus.Read(c.regs.pc)
	c.regs.pc++
	return b
}

func (c *CPU) fetchWord() uint16 {
	lo := uint16(c.fetch())
	hi := uint16(c.fetch())
	return hi<<8 | lo
}

// pollInterrupts reports whether IME is set and at least one enabled
// interrupt is pending. Pending-but-masked interrupts still wake the CPU
// from HALT even when IME is 0.
func (c *CPU) pollInterrupts() bool {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	pending := ifReg & ieReg & 0x1F

	if pending != 0 && c.halted {
		c.halted = false
	}

	return c.ime && pending != 0
}

// serviceInterrupt dispatches the highest-priority pending interrupt: push
// PC, jump to its vector, clear IME and its IF bit. Returns the 20-cycle
// dispatch cost.
func (c *CPU) serviceInterrupt() int {
	ifReg := c.bus.Read(addr.IF)
	ieReg := c.bus.Read(addr.IE)
	pending := ifReg & ieReg & 0x1F

	for _, iv := range interruptVectors {
		if pending&(1<<iv.bit) == 0 {
			continue
		}
		c.ime = false
		c.bus.Write(addr.IF, ifReg&^(1<<iv.bit))
		c.pushStack(c.regs.pc)
		c.regs.pc = iv.vector
		return 20
	}
	return 0
}

func (c *CPU) pushStack(value uint16) {
	c.regs.sp--
	c.bus.Write(c.regs.sp, byte(value>>8))
	c.regs.sp--
	c.bus.Write(c.regs.sp, byte(value))
}

func (c *CPU) popStack() uint16 {
	lo := uint16(c.bus.Read(c.regs.sp))
	c.regs.sp++
	hi := uint16(c.bus.Read(c.regs.sp))
	c.regs.sp++
	return hi<<8 | lo
}
