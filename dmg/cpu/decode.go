package cpu

// Kind identifies the operation family of a decoded instruction. Execute
// switches on this value; operand resolution (which register, which
// addressing mode) is carried alongside it in Instruction.
type Kind uint8

const (
	KindUndefined Kind = iota
	// KindUndefinedOpcode marks one of the eleven permanently undefined
	// primary bytes (0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4,
	// 0xFC, 0xFD). Real hardware behavior for these varies and is out of
	// scope here; Execute treats it as a one M-cycle no-op and logs a note.
	KindUndefinedOpcode
	KindNOP
	KindLD8          // LD r8/(HL), r8/(HL)/d8
	KindLD16Imm      // LD rp, d16
	KindLDMemA       // LD (BC|DE|HL+|HL-), A  and the reverse
	KindLDSPToMem    // LD (a16), SP
	KindLDHLSPOffset // LD HL, SP+r8
	KindLDSPFromHL   // LD SP, HL
	KindLDHighMemA   // LD (0xFF00+a8/C), A and reverse
	KindLDDirectA    // LD (a16), A and reverse
	KindPUSH
	KindPOP
	KindINC8
	KindDEC8
	KindINC16
	KindDEC16
	KindALU // ADD/ADC/SUB/SBC/AND/XOR/OR/CP A, r8/(HL)/d8
	KindADDHL
	KindADDSPImm
	KindJR
	KindJP
	KindJPHL
	KindCALL
	KindRET
	KindRETI
	KindRST
	KindDI
	KindEI
	KindHALT
	KindSTOP
	KindCCF
	KindSCF
	KindCPL
	KindDAA
	KindRLCA
	KindRLA
	KindRRCA
	KindRRA
	KindRotShift // CB-prefixed RLC/RRC/RL/RR/SLA/SRA/SWAP/SRL
	KindBIT
	KindRES
	KindSET
)

// direction distinguishes "A is the destination" from "A is the source" for
// the handful of instructions that load through A in either direction.
type direction uint8

const (
	toA direction = iota
	fromA
)

// Instruction is the decoder's tagged output: an operation kind plus enough
// operand metadata to execute it, and the cycle count charged on completion
// (branches that don't take pay a different, lower, cost - Execute reports
// the actual cost back).
type Instruction struct {
	Kind      Kind
	Prefixed  bool
	Raw       byte
	Reg       uint8 // primary r8/rp/rp2 index, meaning depends on Kind
	Reg2      uint8 // secondary r8 index for LD r,r and rotate/bit ops
	AluOp     uint8 // 0..7: ADD,ADC,SUB,SBC,AND,XOR,OR,CP
	RotOp     uint8 // 0..7: RLC,RRC,RL,RR,SLA,SRA,SWAP,SRL
	BitIndex  uint8
	Cond      uint8 // 0..3: NZ,Z,NC,C
	Dir       direction
	// Cycles is the cost charged when a conditional branch is NOT taken
	// (or the only cost, for non-branching instructions). Execute adds the
	// extra cost of a taken branch itself.
	Cycles int
}

// touchesHL reports whether r8 index 6 - the (HL) slot - appears as
// either operand of an LD8/ALU/INC/DEC/rotate/bit instruction, which costs
// more cycles than a plain register operand.
func (in Instruction) touchesHL() bool {
	switch in.Kind {
	case KindLD8:
		return in.Reg == 6 || in.Reg2 == 6
	case KindINC8, KindDEC8:
		return in.Reg == 6
	case KindALU, KindRotShift, KindBIT, KindRES, KindSET:
		return in.Reg2 == 6
	default:
		return false
	}
}

// The register-pair index convention used by Reg is BC,DE,HL,SP for
// LD16/INC16/DEC16/ADD HL, and BC,DE,HL,AF for PUSH/POP.

// Decode inspects a single opcode byte (a primary byte, or, with prefixed
// set, the byte that followed a 0xCB prefix) and returns the tagged
// Instruction it names. The eleven
// permanently undefined primary bytes decode to KindUndefinedOpcode rather
// than an error; 0xCB can never be decoded here as a standalone instruction,
// it is only ever consumed as a prefix by the caller before Decode is
// invoked for the second byte, and a bare occurrence is reported as a
// DecodeError.
func Decode(opcode byte, prefixed bool) (Instruction, error) {
	if prefixed {
		return decodePrefixed(opcode), nil
	}
	return decodePrimary(opcode)
}

func decodePrimary(op byte) (Instruction, error) {
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7
	p := y >> 1
	q := y & 1

	in := Instruction{Raw: op}

	switch x {
	case 0:
		switch z {
		case 0:
			switch {
			case y == 0:
				in.Kind = KindNOP
			case y == 1:
				in.Kind = KindLDSPToMem
			case y == 2:
				in.Kind = KindSTOP
			case y == 3:
				in.Kind = KindJR
				in.Cond = 4 // unconditional marker
			default:
				in.Kind = KindJR
				in.Cond = y - 4
			}
		case 1:
			if q == 0 {
				in.Kind = KindLD16Imm
				in.Reg = p
			} else {
				in.Kind = KindADDHL
				in.Reg = p
			}
		case 2:
			in.Kind = KindLDMemA
			in.Reg = p
			if q == 0 {
				in.Dir = fromA
			} else {
				in.Dir = toA
			}
		case 3:
			if q == 0 {
				in.Kind = KindINC16
			} else {
				in.Kind = KindDEC16
			}
			in.Reg = p
		case 4:
			in.Kind = KindINC8
			in.Reg = y
		case 5:
			in.Kind = KindDEC8
			in.Reg = y
		case 6:
			in.Kind = KindLD8
			in.Reg = y
			in.Reg2 = 8 // 8 marks "immediate byte follows" rather than a register
		case 7:
			switch y {
			case 0:
				in.Kind = KindRLCA
			case 1:
				in.Kind = KindRRCA
			case 2:
				in.Kind = KindRLA
			case 3:
				in.Kind = KindRRA
			case 4:
				in.Kind = KindDAA
			case 5:
				in.Kind = KindCPL
			case 6:
				in.Kind = KindSCF
			case 7:
				in.Kind = KindCCF
			}
		}
	case 1:
		if y == 6 && z == 6 {
			in.Kind = KindHALT
		} else {
			in.Kind = KindLD8
			in.Reg = y
			in.Reg2 = z
		}
	case 2:
		in.Kind = KindALU
		in.AluOp = y
		in.Reg2 = z
	case 3:
		switch z {
		case 0:
			switch {
			case y <= 3:
				in.Kind = KindRET
				in.Cond = y
			case y == 4:
				in.Kind = KindLDHighMemA
				in.Reg = 0 // (a8)
				in.Dir = fromA
			case y == 5:
				in.Kind = KindADDSPImm
			case y == 6:
				in.Kind = KindLDHighMemA
				in.Reg = 0
				in.Dir = toA
			case y == 7:
				in.Kind = KindLDHLSPOffset
			}
		case 1:
			if q == 0 {
				in.Kind = KindPOP
				in.Reg = p
			} else {
				switch p {
				case 0:
					in.Kind = KindRET
					in.Cond = 4
				case 1:
					in.Kind = KindRETI
				case 2:
					in.Kind = KindJPHL
				case 3:
					in.Kind = KindLDSPFromHL
				}
			}
		case 2:
			switch {
			case y <= 3:
				in.Kind = KindJP
				in.Cond = y
			case y == 4:
				in.Kind = KindLDHighMemA
				in.Reg = 1 // (C)
				in.Dir = fromA
			case y == 5:
				in.Kind = KindLDDirectA
				in.Dir = fromA
			case y == 6:
				in.Kind = KindLDHighMemA
				in.Reg = 1
				in.Dir = toA
			case y == 7:
				in.Kind = KindLDDirectA
				in.Dir = toA
			}
		case 3:
			switch {
			case y == 0:
				in.Kind = KindJP
				in.Cond = 4
			case y == 6:
				in.Kind = KindDI
			case y == 7:
				in.Kind = KindEI
			case op == 0xCB:
				// The fetch loop always consumes 0xCB as a prefix before
				// Decode is called, so reaching this case means Decode was
				// invoked directly on a bare 0xCB.
				return in, DecodeError{Byte: op}
			default:
				in.Kind = KindUndefinedOpcode
			}
		case 4:
			if y <= 3 {
				in.Kind = KindCALL
				in.Cond = y
			} else {
				in.Kind = KindUndefinedOpcode
			}
		case 5:
			if q == 0 {
				in.Kind = KindPUSH
				in.Reg = p
			} else if p == 0 {
				in.Kind = KindCALL
				in.Cond = 4
			} else {
				in.Kind = KindUndefinedOpcode
			}
		case 6:
			in.Kind = KindALU
			in.AluOp = y
			in.Reg2 = 8 // immediate
		case 7:
			in.Kind = KindRST
			in.Reg = y
		}
	}

	in.Cycles = primaryCycles(in)
	return in, nil
}

// primaryCycles returns the non-taken/base M-cycle*4 cost of a decoded
// primary instruction, per the standard DMG instruction timing table.
func primaryCycles(in Instruction) int {
	switch in.Kind {
	case KindNOP, KindUndefinedOpcode, KindRLCA, KindRRCA, KindRLA, KindRRA, KindDAA, KindCPL, KindSCF, KindCCF,
		KindDI, KindEI, KindSTOP:
		return 4
	case KindLD16Imm:
		return 12
	case KindLDMemA:
		return 8
	case KindLDSPToMem:
		return 20
	case KindLDHLSPOffset:
		return 12
	case KindLDSPFromHL:
		return 8
	case KindINC16, KindDEC16:
		return 8
	case KindINC8, KindDEC8:
		if in.Reg == 6 {
			return 12
		}
		return 4
	case KindLD8:
		switch {
		case in.Reg == 6 && in.Reg2 == 8:
			return 12 // LD (HL), d8
		case in.Reg2 == 8:
			return 8 // LD r, d8
		case in.Reg == 6 || in.Reg2 == 6:
			return 8 // LD r,(HL) or LD (HL),r
		default:
			return 4 // LD r,r
		}
	case KindALU:
		if in.Reg2 == 8 {
			return 8 // ALU A, d8
		}
		if in.Reg2 == 6 {
			return 8 // ALU A, (HL)
		}
		return 4
	case KindADDHL:
		return 8
	case KindADDSPImm:
		return 16
	case KindJR:
		return 8 // +4 if taken
	case KindJP:
		if in.Cond == 4 {
			return 16
		}
		return 12 // +4 if taken
	case KindJPHL:
		return 4
	case KindCALL:
		if in.Cond == 4 {
			return 24
		}
		return 12 // +12 if taken
	case KindRET:
		if in.Cond == 4 {
			return 16
		}
		return 8 // +12 if taken
	case KindRETI:
		return 16
	case KindRST:
		return 16
	case KindPUSH:
		return 16
	case KindPOP:
		return 12
	case KindHALT:
		return 4
	case KindLDHighMemA:
		if in.Reg == 1 {
			return 8 // (C)
		}
		return 12 // (a8)
	case KindLDDirectA:
		return 16
	default:
		return 4
	}
}

func decodePrefixed(op byte) Instruction {
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7

	in := Instruction{Raw: op, Prefixed: true, Reg2: z}

	switch x {
	case 0:
		in.Kind = KindRotShift
		in.RotOp = y
	case 1:
		in.Kind = KindBIT
		in.BitIndex = y
	case 2:
		in.Kind = KindRES
		in.BitIndex = y
	case 3:
		in.Kind = KindSET
		in.BitIndex = y
	}

	if in.touchesHL() {
		if in.Kind == KindBIT {
			in.Cycles = 12
		} else {
			in.Cycles = 16
		}
	} else {
		in.Cycles = 8
	}

	return in
}
