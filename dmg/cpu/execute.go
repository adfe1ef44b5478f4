package cpu

import (
	"fmt"
	"log/slog"
)

// readR8 reads one of the 8 operand slots used by LD/ALU/rotate/bit
// opcodes; index 6 routes through the bus via (HL) instead of a register.
func (c *CPU) readR8(index uint8) byte {
	if index == 6 {
		return c.bus.Read(c.regs.getHL())
	}
	return *c.regs.reg8(index)
}

func (c *CPU) writeR8(index uint8, value byte) {
	if index == 6 {
		c.bus.Write(c.regs.getHL(), value)
		return
	}
	*c.regs.reg8(index) = value
}

func (c *CPU) readRP(index uint8) uint16 {
	switch index {
	case 0:
		return c.regs.getBC()
	case 1:
		return c.regs.getDE()
	case 2:
		return c.regs.getHL()
	default:
		return c.regs.sp
	}
}

func (c *CPU) writeRP(index uint8, value uint16) {
	switch index {
	case 0:
		c.regs.setBC(value)
	case 1:
		c.regs.setDE(value)
	case 2:
		c.regs.setHL(value)
	default:
		c.regs.sp = value
	}
}

func (c *CPU) readRP2(index uint8) uint16 {
	switch index {
	case 0:
		return c.regs.getBC()
	case 1:
		return c.regs.getDE()
	case 2:
		return c.regs.getHL()
	default:
		return c.regs.getAF()
	}
}

func (c *CPU) writeRP2(index uint8, value uint16) {
	switch index {
	case 0:
		c.regs.setBC(value)
	case 1:
		c.regs.setDE(value)
	case 2:
		c.regs.setHL(value)
	default:
		c.regs.setAF(value)
	}
}

func (c *CPU) checkCond(cond uint8) bool {
	switch cond {
	case 0:
		return !c.regs.flag(flagZ)
	case 1:
		return c.regs.flag(flagZ)
	case 2:
		return !c.regs.flag(flagC)
	case 3:
		return c.regs.flag(flagC)
	default:
		return true
	}
}

// execute dispatches on the decoded instruction's Kind and returns the
// actual cycle cost, which for conditional branches differs from the
// decoder's base estimate when the branch is taken.
func (c *CPU) execute(in Instruction) (int, error) {
	switch in.Kind {
	case KindUndefined:
		return 0, DecodeError{Byte: in.Raw, Prefixed: in.Prefixed}

	case KindUndefinedOpcode:
		slog.Debug("cpu: executed undefined opcode as NOP", "opcode", fmt.Sprintf("0x%02X", in.Raw))
		return in.Cycles, nil

	case KindNOP:
		return in.Cycles, nil

	case KindLD8:
		if in.Reg2 == 8 {
			c.writeR8(in.Reg, c.fetch())
		} else {
			c.writeR8(in.Reg, c.readR8(in.Reg2))
		}
		return in.Cycles, nil

	case KindLD16Imm:
		c.writeRP(in.Reg, c.fetchWord())
		return in.Cycles, nil

	case KindLDMemA:
		addr := c.resolveIndirectAddr(in.Reg)
		if in.Dir == fromA {
			c.bus.Write(addr, c.regs.a)
		} else {
			c.regs.a = c.bus.Read(addr)
		}
		return in.Cycles, nil

	case KindLDSPToMem:
		target := c.fetchWord()
		c.bus.Write(target, byte(c.regs.sp))
		c.bus.Write(target+1, byte(c.regs.sp>>8))
		return in.Cycles, nil

	case KindLDHLSPOffset:
		offset := int8(c.fetch())
		result := uint32(int32(c.regs.sp) + int32(offset))
		c.regs.setFlag(flagZ, false)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, (c.regs.sp&0xF)+uint16(byte(offset)&0xF) > 0xF)
		c.regs.setFlag(flagC, (c.regs.sp&0xFF)+uint16(byte(offset)) > 0xFF)
		c.regs.setHL(uint16(result))
		return in.Cycles, nil

	case KindLDSPFromHL:
		c.regs.sp = c.regs.getHL()
		return in.Cycles, nil

	case KindLDHighMemA:
		var target uint16
		if in.Reg == 1 {
			target = 0xFF00 | uint16(c.regs.c)
		} else {
			target = 0xFF00 | uint16(c.fetch())
		}
		if in.Dir == fromA {
			c.bus.Write(target, c.regs.a)
		} else {
			c.regs.a = c.bus.Read(target)
		}
		return in.Cycles, nil

	case KindLDDirectA:
		target := c.fetchWord()
		if in.Dir == fromA {
			c.bus.Write(target, c.regs.a)
		} else {
			c.regs.a = c.bus.Read(target)
		}
		return in.Cycles, nil

	case KindPUSH:
		c.pushStack(c.readRP2(in.Reg))
		return in.Cycles, nil

	case KindPOP:
		c.writeRP2(in.Reg, c.popStack())
		return in.Cycles, nil

	case KindINC8:
		c.writeR8(in.Reg, c.inc8(c.readR8(in.Reg)))
		return in.Cycles, nil

	case KindDEC8:
		c.writeR8(in.Reg, c.dec8(c.readR8(in.Reg)))
		return in.Cycles, nil

	case KindINC16:
		c.writeRP(in.Reg, c.readRP(in.Reg)+1)
		return in.Cycles, nil

	case KindDEC16:
		c.writeRP(in.Reg, c.readRP(in.Reg)-1)
		return in.Cycles, nil

	case KindALU:
		var operand byte
		if in.Reg2 == 8 {
			operand = c.fetch()
		} else {
			operand = c.readR8(in.Reg2)
		}
		c.alu(in.AluOp, operand)
		return in.Cycles, nil

	case KindADDHL:
		c.addHL(c.readRP(in.Reg))
		return in.Cycles, nil

	case KindADDSPImm:
		offset := int8(c.fetch())
		result := uint32(int32(c.regs.sp) + int32(offset))
		c.regs.setFlag(flagZ, false)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, (c.regs.sp&0xF)+uint16(byte(offset)&0xF) > 0xF)
		c.regs.setFlag(flagC, (c.regs.sp&0xFF)+uint16(byte(offset)) > 0xFF)
		c.regs.sp = uint16(result)
		return in.Cycles, nil

	case KindJR:
		offset := int8(c.fetch())
		if in.Cond == 4 || c.checkCond(in.Cond) {
			c.regs.pc = uint16(int32(c.regs.pc) + int32(offset))
			return in.Cycles + 4, nil
		}
		return in.Cycles, nil

	case KindJP:
		target := c.fetchWord()
		if in.Cond == 4 || c.checkCond(in.Cond) {
			c.regs.pc = target
			if in.Cond == 4 {
				return in.Cycles, nil
			}
			return in.Cycles + 4, nil
		}
		return in.Cycles, nil

	case KindJPHL:
		c.regs.pc = c.regs.getHL()
		return in.Cycles, nil

	case KindCALL:
		target := c.fetchWord()
		if in.Cond == 4 || c.checkCond(in.Cond) {
			c.pushStack(c.regs.pc)
			c.regs.pc = target
			if in.Cond == 4 {
				return in.Cycles, nil
			}
			return in.Cycles + 12, nil
		}
		return in.Cycles, nil

	case KindRET:
		if in.Cond == 4 || c.checkCond(in.Cond) {
			c.regs.pc = c.popStack()
			if in.Cond == 4 {
				return in.Cycles, nil
			}
			return in.Cycles + 12, nil
		}
		return in.Cycles, nil

	case KindRETI:
		c.regs.pc = c.popStack()
		c.ime = true
		return in.Cycles, nil

	case KindRST:
		c.pushStack(c.regs.pc)
		c.regs.pc = uint16(in.Reg) * 8
		return in.Cycles, nil

	case KindDI:
		c.ime = false
		return in.Cycles, nil

	case KindEI:
		c.ime = true
		return in.Cycles, nil

	case KindHALT:
		c.halted = true
		return in.Cycles, nil

	case KindSTOP:
		c.fetch() // STOP is followed by an ignored byte on real hardware
		return 0, UnsupportedError{Feature: "STOP"}

	case KindDAA:
		return 0, UnsupportedError{Feature: "DAA"}

	case KindCPL:
		c.regs.a = ^c.regs.a
		c.regs.setFlag(flagN, true)
		c.regs.setFlag(flagH, true)
		return in.Cycles, nil

	case KindSCF:
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, false)
		c.regs.setFlag(flagC, true)
		return in.Cycles, nil

	case KindCCF:
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, false)
		c.regs.setFlag(flagC, !c.regs.flag(flagC))
		return in.Cycles, nil

	case KindRLCA:
		c.regs.a = c.rotateLeft(c.regs.a, false)
		c.regs.setFlag(flagZ, false)
		return in.Cycles, nil

	case KindRLA:
		c.regs.a = c.rotateLeft(c.regs.a, true)
		c.regs.setFlag(flagZ, false)
		return in.Cycles, nil

	case KindRRCA:
		c.regs.a = c.rotateRight(c.regs.a, false)
		c.regs.setFlag(flagZ, false)
		return in.Cycles, nil

	case KindRRA:
		c.regs.a = c.rotateRight(c.regs.a, true)
		c.regs.setFlag(flagZ, false)
		return in.Cycles, nil

	case KindRotShift:
		value := c.readR8(in.Reg2)
		c.writeR8(in.Reg2, c.rotShift(in.RotOp, value))
		return in.Cycles, nil

	case KindBIT:
		value := c.readR8(in.Reg2)
		c.regs.setFlag(flagZ, value&(1<<in.BitIndex) == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, true)
		return in.Cycles, nil

	case KindRES:
		value := c.readR8(in.Reg2)
		c.writeR8(in.Reg2, value&^(1<<in.BitIndex))
		return in.Cycles, nil

	case KindSET:
		value := c.readR8(in.Reg2)
		c.writeR8(in.Reg2, value|(1<<in.BitIndex))
		return in.Cycles, nil

	default:
		return 0, DecodeError{Byte: in.Raw, Prefixed: in.Prefixed}
	}
}

// resolveIndirectAddr computes the address named by the LD (rr),A family:
// 0=BC, 1=DE, 2=HL with post-increment, 3=HL with post-decrement.
func (c *CPU) resolveIndirectAddr(index uint8) uint16 {
	switch index {
	case 0:
		return c.regs.getBC()
	case 1:
		return c.regs.getDE()
	case 2:
		hl := c.regs.getHL()
		c.regs.setHL(hl + 1)
		return hl
	default:
		hl := c.regs.getHL()
		c.regs.setHL(hl - 1)
		return hl
	}
}

func (c *CPU) inc8(value byte) byte {
	result := value + 1
	c.regs.setFlag(flagZ, result == 0)
	c.regs.setFlag(flagN, false)
	c.regs.setFlag(flagH, value&0xF == 0xF)
	return result
}

func (c *CPU) dec8(value byte) byte {
	result := value - 1
	c.regs.setFlag(flagZ, result == 0)
	c.regs.setFlag(flagN, true)
	c.regs.setFlag(flagH, value&0xF == 0)
	return result
}

func (c *CPU) addHL(operand uint16) {
	hl := c.regs.getHL()
	result := uint32(hl) + uint32(operand)

	c.regs.setFlag(flagN, false)
	c.regs.setFlag(flagH, (hl&0xFFF)+(operand&0xFFF) > 0xFFF)
	c.regs.setFlag(flagC, result > 0xFFFF)
	c.regs.setHL(uint16(result))
}

// alu applies one of the 8 accumulator operations (ADD,ADC,SUB,SBC,AND,XOR,
// OR,CP) to A and operand, updating flags. CP computes but discards A.
func (c *CPU) alu(op uint8, operand byte) {
	a := c.regs.a
	carry := byte(0)
	if c.regs.flag(flagC) {
		carry = 1
	}

	switch op {
	case 0: // ADD
		result := uint16(a) + uint16(operand)
		c.regs.setFlag(flagZ, byte(result) == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, (a&0xF)+(operand&0xF) > 0xF)
		c.regs.setFlag(flagC, result > 0xFF)
		c.regs.a = byte(result)
	case 1: // ADC
		result := uint16(a) + uint16(operand) + uint16(carry)
		c.regs.setFlag(flagZ, byte(result) == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, (a&0xF)+(operand&0xF)+carry > 0xF)
		c.regs.setFlag(flagC, result > 0xFF)
		c.regs.a = byte(result)
	case 2: // SUB
		result := a - operand
		c.regs.setFlag(flagZ, result == 0)
		c.regs.setFlag(flagN, true)
		c.regs.setFlag(flagH, a&0xF < operand&0xF)
		c.regs.setFlag(flagC, a < operand)
		c.regs.a = result
	case 3: // SBC
		result := int16(a) - int16(operand) - int16(carry)
		c.regs.setFlag(flagZ, byte(result) == 0)
		c.regs.setFlag(flagN, true)
		c.regs.setFlag(flagH, int16(a&0xF)-int16(operand&0xF)-int16(carry) < 0)
		c.regs.setFlag(flagC, result < 0)
		c.regs.a = byte(result)
	case 4: // AND
		c.regs.a = a & operand
		c.regs.setFlag(flagZ, c.regs.a == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, true)
		c.regs.setFlag(flagC, false)
	case 5: // XOR
		c.regs.a = a ^ operand
		c.regs.setFlag(flagZ, c.regs.a == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, false)
		c.regs.setFlag(flagC, false)
	case 6: // OR
		c.regs.a = a | operand
		c.regs.setFlag(flagZ, c.regs.a == 0)
		c.regs.setFlag(flagN, false)
		c.regs.setFlag(flagH, false)
		c.regs.setFlag(flagC, false)
	case 7: // CP
		result := a - operand
		c.regs.setFlag(flagZ, result == 0)
		c.regs.setFlag(flagN, true)
		c.regs.setFlag(flagH, a&0xF < operand&0xF)
		c.regs.setFlag(flagC, a < operand)
	}
}

func (c *CPU) rotateLeft(value byte, throughCarry bool) byte {
	carryIn := byte(0)
	if throughCarry && c.regs.flag(flagC) {
		carryIn = 1
	} else if !throughCarry {
		carryIn = value >> 7
	}

	newCarry := value&0x80 != 0
	result := value<<1 | carryIn

	c.regs.setFlag(flagZ, result == 0)
	c.regs.setFlag(flagN, false)
	c.regs.setFlag(flagH, false)
	c.regs.setFlag(flagC, newCarry)
	return result
}

func (c *CPU) rotateRight(value byte, throughCarry bool) byte {
	carryIn := byte(0)
	if throughCarry && c.regs.flag(flagC) {
		carryIn = 1
	} else if !throughCarry {
		carryIn = value & 1
	}

	newCarry := value&0x01 != 0
	result := value>>1 | carryIn<<7

	c.regs.setFlag(flagZ, result == 0)
	c.regs.setFlag(flagN, false)
	c.regs.setFlag(flagH, false)
	c.regs.setFlag(flagC, newCarry)
	return result
}

// rotShift applies one of the 8 CB-prefixed rotate/shift operations
// (RLC,RRC,RL,RR,SLA,SRA,SWAP,SRL), always updating Z unlike the
// accumulator-only RLCA/RLA/RRCA/RRA forms.
func (c *CPU) rotShift(op uint8, value byte) byte {
	var result byte
	var carry bool

	switch op {
	case 0: // RLC
		carry = value&0x80 != 0
		result = value<<1 | value>>7
	case 1: // RRC
		carry = value&0x01 != 0
		result = value>>1 | value<<7
	case 2: // RL
		carryIn := byte(0)
		if c.regs.flag(flagC) {
			carryIn = 1
		}
		carry = value&0x80 != 0
		result = value<<1 | carryIn
	case 3: // RR
		carryIn := byte(0)
		if c.regs.flag(flagC) {
			carryIn = 1
		}
		carry = value&0x01 != 0
		result = value>>1 | carryIn<<7
	case 4: // SLA
		carry = value&0x80 != 0
		result = value << 1
	case 5: // SRA
		carry = value&0x01 != 0
		result = value>>1 | value&0x80
	case 6: // SWAP
		result = value<<4 | value>>4
		carry = false
	case 7: // SRL
		carry = value&0x01 != 0
		result = value >> 1
	}

	c.regs.setFlag(flagZ, result == 0)
	c.regs.setFlag(flagN, false)
	c.regs.setFlag(flagH, false)
	c.regs.setFlag(flagC, carry)
	return result
}
