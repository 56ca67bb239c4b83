package isa

import "rv64sim/pkg/regfile"

func reg(n uint32) regfile.RegID {
	return regfile.RegID(n & 0b11111)
}

// signExtend treats the low `bits` bits of val as a two's-complement
// integer and sign-extends it to a full int64.
func signExtend(val uint64, bits int) int64 {
	shift := 64 - bits
	return int64(val<<uint(shift)) >> uint(shift)
}

// Decode parses one instruction starting at the given 16-bit halfwords
// (little-endian halves of the 32-bit word, or the single compressed
// halfword). It returns the decoded Op and the instruction's length in
// bits (16 for compressed, 32 otherwise), mirroring the two-halfword
// probe the original loader uses to avoid reading past a VMA when the
// instruction turns out to be compressed (§4.1).
func Decode(lo16, hi16 uint16) (Op, int) {
	isCompressed := lo16&0b11 != 0b11
	isProlonged := lo16&0b11111 == 0b11111
	if isProlonged {
		return Op{Kind: IllegalProlonged}, 32
	}
	if isCompressed {
		return decodeCompressed(lo16), 16
	}

	raw := uint32(hi16)<<16 | uint32(lo16)
	opcode := raw & 0b1111111

	switch opcode {
	case 0x33, 0x3B:
		return decodeR(raw), 32
	case 0x03, 0x13, 0x1B, 0x67, 0x73:
		return decodeI(raw), 32
	case 0x23:
		return decodeS(raw), 32
	case 0x63:
		return decodeSB(raw), 32
	case 0x17, 0x37:
		return decodeU(raw), 32
	case 0x6F:
		return decodeUJ(raw), 32
	case 0x0F:
		func3 := (raw >> 12) & 0b111
		succ := (raw >> 20) & 0b1111
		pred := (raw >> 24) & 0b1111
		switch {
		case func3 == 0:
			return Op{Kind: Unsupported, Name: "fence"}, 32
		case func3 == 1 && pred == 0 && succ == 0:
			return Op{Kind: Unsupported, Name: "fence.i"}, 32
		default:
			return Op{Kind: Unknown, Raw: raw}, 32
		}
	default:
		return Op{Kind: Unknown, Raw: raw}, 32
	}
}

func decodeR(raw uint32) Op {
	opcode := raw & 0b1111111
	rd := reg(raw >> 7)
	func3 := (raw >> 12) & 0b111
	rs1 := reg(raw >> 15)
	rs2 := reg(raw >> 20)
	func7 := (raw >> 25) & 0b1111111

	kind := Unknown
	if opcode == 0x33 {
		switch {
		case func3 == 0 && func7 == 0x00:
			kind = Add
		case func3 == 0 && func7 == 0x01:
			kind = Mul
		case func3 == 0 && func7 == 0x20:
			kind = Sub
		case func3 == 1 && func7 == 0x00:
			kind = Sll
		case func3 == 1 && func7 == 0x01:
			kind = Mulh
		case func3 == 2 && func7 == 0x00:
			kind = Slt
		case func3 == 3 && func7 == 0x00:
			kind = Sltu
		case func3 == 4 && func7 == 0x00:
			kind = Xor
		case func3 == 4 && func7 == 0x01:
			kind = Div
		case func3 == 5 && func7 == 0x00:
			kind = Srl
		case func3 == 5 && func7 == 0x20:
			kind = Sra
		case func3 == 6 && func7 == 0x00:
			kind = Or
		case func3 == 6 && func7 == 0x01:
			kind = Rem
		case func3 == 7 && func7 == 0x00:
			kind = And
		}
	} else { // 0x3B
		switch {
		case func3 == 0 && func7 == 0x00:
			kind = Addw
		case func3 == 0 && func7 == 0x20:
			kind = Subw
		case func3 == 0 && func7 == 0x01:
			kind = Mulw
		case func3 == 1 && func7 == 0x00:
			kind = Sllw
		case func3 == 5 && func7 == 0x00:
			kind = Srlw
		case func3 == 5 && func7 == 0x20:
			kind = Sraw
		case func3 == 4 && func7 == 0x01:
			kind = Divw
		case func3 == 6 && func7 == 0x01:
			kind = Remw
		}
	}
	if kind == Unknown {
		return Op{Kind: Unknown, Raw: raw}
	}
	return Op{Kind: kind, Rd: rd, Rs1: rs1, Rs2: rs2}
}

func decodeI(raw uint32) Op {
	opcode := raw & 0b1111111
	rd := reg(raw >> 7)
	func3 := (raw >> 12) & 0b111
	rs1 := reg(raw >> 15)
	imm := signExtend(uint64(raw>>20), 12)
	shamt := imm & 0b111111

	switch opcode {
	case 0x03:
		switch func3 {
		case 0:
			return Op{Kind: Lb, Rd: rd, Rs1: rs1, Imm: imm}
		case 1:
			return Op{Kind: Lh, Rd: rd, Rs1: rs1, Imm: imm}
		case 2:
			return Op{Kind: Lw, Rd: rd, Rs1: rs1, Imm: imm}
		case 3:
			return Op{Kind: Ld, Rd: rd, Rs1: rs1, Imm: imm}
		case 4:
			return Op{Kind: Lbu, Rd: rd, Rs1: rs1, Imm: imm}
		case 5:
			return Op{Kind: Lhu, Rd: rd, Rs1: rs1, Imm: imm}
		case 6:
			return Op{Kind: Lwu, Rd: rd, Rs1: rs1, Imm: imm}
		}
	case 0x13:
		topBits := imm &^ 0b111111
		switch {
		case func3 == 0:
			return Op{Kind: Addi, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 1 && topBits == 0:
			return Op{Kind: Slli, Rd: rd, Rs1: rs1, Imm: shamt}
		case func3 == 2:
			return Op{Kind: Slti, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 3:
			return Op{Kind: Sltiu, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 4:
			return Op{Kind: Xori, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 5 && topBits == 0:
			return Op{Kind: Srli, Rd: rd, Rs1: rs1, Imm: shamt}
		case func3 == 5 && topBits == 0b010000000000:
			return Op{Kind: Srai, Rd: rd, Rs1: rs1, Imm: shamt}
		case func3 == 6:
			return Op{Kind: Ori, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 7:
			return Op{Kind: Andi, Rd: rd, Rs1: rs1, Imm: imm}
		}
	case 0x1B:
		shamtw := imm & 0b11111
		topBits := imm &^ 0b11111
		switch {
		case func3 == 0:
			return Op{Kind: Addiw, Rd: rd, Rs1: rs1, Imm: imm}
		case func3 == 1 && topBits == 0:
			return Op{Kind: Slliw, Rd: rd, Rs1: rs1, Imm: shamtw}
		case func3 == 5 && topBits == 0:
			return Op{Kind: Srliw, Rd: rd, Rs1: rs1, Imm: shamtw}
		case func3 == 5 && topBits == 0b010000000000:
			return Op{Kind: Sraiw, Rd: rd, Rs1: rs1, Imm: shamtw}
		}
	case 0x67:
		if func3 == 0 {
			return Op{Kind: Jalr, Rd: rd, Rs1: rs1, Imm: imm}
		}
	case 0x73:
		switch func3 {
		case 0:
			switch imm {
			case 0:
				return Op{Kind: Ecall}
			case 1:
				return Op{Kind: Unsupported, Name: "ebreak"}
			case 2:
				return Op{Kind: Unsupported, Name: "uret"}
			case 0x102:
				return Op{Kind: Unsupported, Name: "sret"}
			case 0x302:
				return Op{Kind: Unsupported, Name: "mret"}
			case 0x105:
				return Op{Kind: Unsupported, Name: "wfi"}
			default:
				if imm&0b111111100000 == 0b0001001_00000 {
					return Op{Kind: Unsupported, Name: "sfence.vma"}
				}
				return Op{Kind: Unknown, Raw: raw}
			}
		case 1, 2, 3, 5, 6, 7:
			return Op{Kind: Unsupported, Name: "csr"}
		}
	}
	return Op{Kind: Unknown, Raw: raw}
}

func decodeS(raw uint32) Op {
	opcode := raw & 0b1111111
	if opcode != 0x23 {
		return Op{Kind: Unknown, Raw: raw}
	}
	func3 := (raw >> 12) & 0b111
	rs1 := reg(raw >> 15)
	rs2 := reg(raw >> 20)
	imm1 := (raw >> 7) & 0b11111
	imm2 := (raw >> 25) & 0b1111111
	imm := signExtend(uint64(imm2<<5|imm1), 12)

	switch func3 {
	case 0:
		return Op{Kind: Sb, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 1:
		return Op{Kind: Sh, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 2:
		return Op{Kind: Sw, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 3:
		return Op{Kind: Sd, Rs1: rs1, Rs2: rs2, Imm: imm}
	}
	return Op{Kind: Unknown, Raw: raw}
}

func decodeSB(raw uint32) Op {
	opcode := raw & 0b1111111
	if opcode != 0x63 {
		return Op{Kind: Unknown, Raw: raw}
	}
	func3 := (raw >> 12) & 0b111
	rs1 := reg(raw >> 15)
	rs2 := reg(raw >> 20)

	imm1 := (raw >> 8) & 0b1111
	imm2 := (raw >> 25) & 0b111111
	imm3 := (raw >> 7) & 0b1
	imm4 := raw >> 31
	imm := signExtend(uint64(imm4<<12|imm3<<11|imm2<<5|imm1<<1), 13)

	switch func3 {
	case 0:
		return Op{Kind: Beq, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 1:
		return Op{Kind: Bne, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 4:
		return Op{Kind: Blt, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 5:
		return Op{Kind: Bge, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 6:
		return Op{Kind: Bltu, Rs1: rs1, Rs2: rs2, Imm: imm}
	case 7:
		return Op{Kind: Bgeu, Rs1: rs1, Rs2: rs2, Imm: imm}
	}
	return Op{Kind: Unknown, Raw: raw}
}

func decodeU(raw uint32) Op {
	opcode := raw & 0b1111111
	rd := reg(raw >> 7)
	imm := signExtend(uint64(raw&0xFFFFF000), 32)

	switch opcode {
	case 0x17:
		return Op{Kind: Auipc, Rd: rd, Imm: imm}
	case 0x37:
		return Op{Kind: Lui, Rd: rd, Imm: imm}
	}
	return Op{Kind: Unknown, Raw: raw}
}

func decodeUJ(raw uint32) Op {
	opcode := raw & 0b1111111
	if opcode != 0x6F {
		return Op{Kind: Unknown, Raw: raw}
	}
	rd := reg(raw >> 7)
	imm1 := (raw >> 21) & 0b1111111111
	imm2 := (raw >> 20) & 0b1
	imm3 := (raw >> 12) & 0b11111111
	imm4 := raw >> 31
	imm := signExtend(uint64(imm4<<20|imm3<<12|imm2<<11|imm1<<1), 21)

	return Op{Kind: Jal, Rd: rd, Imm: imm}
}

// decodeCompressed handles the small subset of RVC used by typical
// newlib-linked RV64I binaries: c.addi4spn, the x8-x15-relative
// c.lw/c.ld/c.sw/c.sd, addi-family register ops, and c.nop. The
// sp-relative forms (c.lwsp, c.ldsp, c.swsp, c.sdsp) are not decoded.
// Anything else is reported unknown so Fetch can
// halt rather than silently misinterpret a word (§4.1 "compressed subset").
func decodeCompressed(raw uint16) Op {
	opcode := raw & 0b11
	func3 := raw >> 13
	rdp := reg(uint32((raw>>2)&0b111) + 8)

	switch {
	case opcode == 0 && func3 == 0:
		if raw == 0 {
			return Op{Kind: UnknownCompressed, Raw: uint32(raw)}
		}
		imm := (raw >> 5) & 0xFF
		nzuimm := (imm>>2&0b1111)<<6 | (imm>>6)<<4 | (imm&0b10)<<1 | (imm&0b1)<<3
		return Op{Kind: Addi, Rd: rdp, Rs1: regfile.X2, Imm: int64(nzuimm)}

	case opcode == 0 && func3 == 1:
		return Op{Kind: IllegalFp, Raw: uint32(raw)} // c.fld

	case opcode == 0 && func3 == 2:
		rs1p := reg(uint32((raw>>7)&0b111) + 8)
		uimm := (raw>>10&0b111)<<3 | (raw>>5&0b1)<<6 | (raw>>6&0b1)<<2
		return Op{Kind: Lw, Rd: rdp, Rs1: rs1p, Imm: int64(uimm)}

	case opcode == 0 && func3 == 3:
		rs1p := reg(uint32((raw>>7)&0b111) + 8)
		uimm := (raw>>10&0b111)<<3 | (raw>>5&0b11)<<6
		return Op{Kind: Ld, Rd: rdp, Rs1: rs1p, Imm: int64(uimm)}

	case opcode == 0 && func3 == 5:
		return Op{Kind: IllegalFp, Raw: uint32(raw)} // c.fsd

	case opcode == 0 && func3 == 6:
		rs1p := reg(uint32((raw>>7)&0b111) + 8)
		uimm := (raw>>10&0b111)<<3 | (raw>>5&0b1)<<6 | (raw>>6&0b1)<<2
		return Op{Kind: Sw, Rs1: rs1p, Rs2: rdp, Imm: int64(uimm)}

	case opcode == 0 && func3 == 7:
		rs1p := reg(uint32((raw>>7)&0b111) + 8)
		uimm := (raw>>10&0b111)<<3 | (raw>>5&0b11)<<6
		return Op{Kind: Sd, Rs1: rs1p, Rs2: rdp, Imm: int64(uimm)}

	case opcode == 1 && func3 == 0 && raw == 1:
		return Op{Kind: Addi, Rd: regfile.X0, Rs1: regfile.X0, Imm: 0} // c.nop

	case opcode == 1 && func3 == 0:
		rs1 := reg(uint32((raw >> 7) & 0b11111))
		nzimm := signExtend(uint64((raw>>2)&0b11111|((raw>>12)&0b1)<<5), 6)
		return Op{Kind: Addi, Rd: rs1, Rs1: rs1, Imm: nzimm}

	case opcode == 1 && func3 == 1:
		rs1 := reg(uint32((raw >> 7) & 0b11111))
		nzimm := signExtend(uint64((raw>>2)&0b11111|((raw>>12)&0b1)<<5), 6)
		return Op{Kind: Addiw, Rd: rs1, Rs1: rs1, Imm: nzimm}

	case opcode == 1 && func3 == 2:
		rd := reg(uint32((raw >> 7) & 0b11111))
		imm := signExtend(uint64((raw>>2)&0b11111|((raw>>12)&0b1)<<5), 6)
		return Op{Kind: Addi, Rd: rd, Rs1: regfile.X0, Imm: imm}

	default:
		return Op{Kind: UnknownCompressed, Raw: uint32(raw)}
	}
}
