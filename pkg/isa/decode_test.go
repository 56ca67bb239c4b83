package isa

import (
	"testing"

	"rv64sim/pkg/regfile"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func TestDecodeAddi(t *testing.T) {
	op, n := Decode(0x0293, 0x00A3)
	assert(t, n == 32, "expected 32-bit instruction, got %d", n)
	assert(t, op.Kind == Addi, "expected Addi, got %s", op.Kind)
	assert(t, op.Rd == regfile.X5, "expected rd=x5, got %s", op.Rd)
	assert(t, op.Rs1 == regfile.X6, "expected rs1=x6, got %s", op.Rs1)
	assert(t, op.Imm == 10, "expected imm=10, got %d", op.Imm)
}

func TestDecodeAdd(t *testing.T) {
	op, _ := Decode(0x03B3, 0x0094)
	assert(t, op.Kind == Add, "expected Add, got %s", op.Kind)
	assert(t, op.Rd == regfile.X7 && op.Rs1 == regfile.X8 && op.Rs2 == regfile.X9,
		"unexpected operands: %+v", op)
}

func TestDecodeBeqPositiveOffset(t *testing.T) {
	op, _ := Decode(0x8463, 0x0020)
	assert(t, op.Kind == Beq, "expected Beq, got %s", op.Kind)
	assert(t, op.Rs1 == regfile.X1 && op.Rs2 == regfile.X2, "unexpected registers: %+v", op)
	assert(t, op.Imm == 8, "expected branch offset 8, got %d", op.Imm)
}

func TestDecodeLui(t *testing.T) {
	op, _ := Decode(0x51B7, 0x1234)
	assert(t, op.Kind == Lui, "expected Lui, got %s", op.Kind)
	assert(t, op.Rd == regfile.X3, "expected rd=x3, got %s", op.Rd)
	assert(t, op.Imm == 0x12345000, "expected imm=0x12345000, got %#x", op.Imm)
}

func TestDecodeJal(t *testing.T) {
	op, _ := Decode(0x00EF, 0x0100)
	assert(t, op.Kind == Jal, "expected Jal, got %s", op.Kind)
	assert(t, op.Rd == regfile.X1, "expected rd=x1, got %s", op.Rd)
	assert(t, op.Imm == 16, "expected imm=16, got %d", op.Imm)
}

func TestDecodeLoadStore(t *testing.T) {
	op, _ := Decode(0x2283, 0x0043)
	assert(t, op.Kind == Lw, "expected Lw, got %s", op.Kind)
	assert(t, op.Rd == regfile.X5 && op.Rs1 == regfile.X6 && op.Imm == 4,
		"unexpected lw decode: %+v", op)

	op, _ = Decode(0x2223, 0x0053)
	assert(t, op.Kind == Sw, "expected Sw, got %s", op.Kind)
	assert(t, op.Rs1 == regfile.X6 && op.Rs2 == regfile.X5 && op.Imm == 4,
		"unexpected sw decode: %+v", op)
}

func TestDecodeNegativeImmediateSignExtends(t *testing.T) {
	// addi x5, x6, -1: imm field is all ones.
	op, _ := Decode(0x0293, 0xFFF3)
	assert(t, op.Kind == Addi, "expected Addi, got %s", op.Kind)
	assert(t, op.Imm == -1, "expected imm=-1, got %d", op.Imm)
}

func TestDecodeEcall(t *testing.T) {
	op, _ := Decode(0x0073, 0x0000)
	assert(t, op.Kind == Ecall, "expected Ecall, got %s", op.Kind)
}

func TestDecodeUnsupportedFence(t *testing.T) {
	op, _ := Decode(0x000F, 0x0000)
	assert(t, op.Kind == Unsupported, "expected Unsupported, got %s", op.Kind)
	assert(t, op.Kind.IsTerminal(), "Unsupported must be terminal")
}

func TestDecodeUnknown32Bit(t *testing.T) {
	op, _ := Decode(0x005B, 0x0000)
	assert(t, op.Kind == Unknown, "expected Unknown, got %s", op.Kind)
}

func TestDecodeCompressedNop(t *testing.T) {
	op, n := Decode(0x0001, 0x0000)
	assert(t, n == 16, "expected 16-bit instruction, got %d", n)
	assert(t, op.Kind == Addi, "c.nop should decode as addi x0,x0,0, got %s", op.Kind)
	assert(t, op.Rd == regfile.X0 && op.Imm == 0, "unexpected c.nop decode: %+v", op)
}
