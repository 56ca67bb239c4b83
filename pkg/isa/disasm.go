package isa

import "fmt"

// Disassemble renders a decoded Op as RISC-V assembly text, for the
// interactive debugger's `disass` command.
func Disassemble(op Op) string {
	switch op.Kind {
	case Add, Sub, Sll, Slt, Sltu, Xor, Srl, Sra, Or, And,
		Mul, Mulh, Div, Rem, Addw, Subw, Mulw, Divw, Sllw, Srlw, Sraw, Remw:
		return fmt.Sprintf("%s %s, %s, %s", op.Kind, op.Rd, op.Rs1, op.Rs2)
	case Lb, Lbu, Lh, Lhu, Lw, Lwu, Ld:
		return fmt.Sprintf("%s %s, %d(%s)", op.Kind, op.Rd, op.Imm, op.Rs1)
	case Sb, Sh, Sw, Sd:
		return fmt.Sprintf("%s %s, %d(%s)", op.Kind, op.Rs2, op.Imm, op.Rs1)
	case Beq, Bne, Blt, Bge, Bltu, Bgeu:
		return fmt.Sprintf("%s %s, %s, %d", op.Kind, op.Rs1, op.Rs2, op.Imm)
	case Jalr:
		return fmt.Sprintf("jalr %s, %d(%s)", op.Rd, op.Imm, op.Rs1)
	case Jal:
		return fmt.Sprintf("jal %s, %d", op.Rd, op.Imm)
	case Lui, Auipc:
		return fmt.Sprintf("%s %s, %d", op.Kind, op.Rd, op.Imm>>12)
	case Addi, Andi, Ori, Xori, Slti, Sltiu, Addiw:
		return fmt.Sprintf("%s %s, %s, %d", op.Kind, op.Rd, op.Rs1, op.Imm)
	case Slli, Srli, Srai, Slliw, Srliw, Sraiw:
		return fmt.Sprintf("%s %s, %s, %d", op.Kind, op.Rd, op.Rs1, op.Imm)
	case Ecall:
		return "ecall"
	case Unsupported:
		return fmt.Sprintf("<unsupported: %s>", op.Name)
	case Unknown:
		return fmt.Sprintf("<unknown instruction: %#08x>", op.Raw)
	case UnknownCompressed:
		return fmt.Sprintf("<unknown compressed instruction: %#04x>", op.Raw)
	case IllegalFp:
		return fmt.Sprintf("<unsupported fp compressed instruction: %#04x>", op.Raw)
	case IllegalProlonged:
		return "<unsupported prolonged instruction>"
	default:
		return "<unknown>"
	}
}
