package sim_test

import (
	"encoding/binary"
	"testing"

	"rv64sim/pkg/cpu"
	"rv64sim/pkg/memory"
	"rv64sim/pkg/regfile"
	"rv64sim/pkg/sim"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

func seqEncodeR(opcode, rd, func3, rs1, rs2, func7 uint32) uint32 {
	return func7<<25 | rs2<<20 | rs1<<15 | func3<<12 | rd<<7 | opcode
}

func seqEncodeI(opcode, rd, func3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20&0xFFF00000 | rs1<<15 | func3<<12 | rd<<7 | opcode
}

func seqEncodeS(rs1, rs2 uint32, imm int32, func3 uint32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7F)<<25 | rs2<<20 | rs1<<15 | func3<<12 | (u&0x1F)<<7 | 0x23
}

func seqEncodeB(rs1, rs2 uint32, imm int32, func3 uint32) uint32 {
	u := uint32(imm)
	b12 := (u >> 12) & 1
	b11 := (u >> 11) & 1
	b10_5 := (u >> 5) & 0x3F
	b4_1 := (u >> 1) & 0xF
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | func3<<12 | b4_1<<8 | b11<<7 | 0x63
}

func seqAddi(rd, rs1 uint32, imm int32) uint32 { return seqEncodeI(0x13, rd, 0, rs1, imm) }
func seqAdd(rd, rs1, rs2 uint32) uint32        { return seqEncodeR(0x33, rd, 0, rs1, rs2, 0x00) }
func seqDiv(rd, rs1, rs2 uint32) uint32        { return seqEncodeR(0x33, rd, 4, rs1, rs2, 0x01) }
func seqSd(rs1, rs2 uint32, imm int32) uint32  { return seqEncodeS(rs1, rs2, imm, 3) }
func seqLd(rd, rs1 uint32, imm int32) uint32   { return seqEncodeI(0x03, rd, 3, rs1, imm) }
func seqBeq(rs1, rs2 uint32, imm int32) uint32 { return seqEncodeB(rs1, rs2, imm, 0) }
func seqJalr(rd, rs1 uint32, imm int32) uint32 { return seqEncodeI(0x67, rd, 0, rs1, imm) }

func seqAssemble(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

func newSeqProgram(code []byte) *sim.Program {
	codeBytes := make([]byte, 0x100)
	copy(codeBytes, code)
	space := memory.New([]memory.VMA{
		{Base: 0x1000, Size: 0x100, Readable: true, Executable: true, Bytes: codeBytes},
		{Base: 0x2000, Size: 64, Readable: true, Writable: true, Bytes: make([]byte, 64)},
	})
	regs := regfile.New(false)
	prog := sim.NewProgram(regs, space)
	prog.EntryPoint = 0x1000
	prog.ProgramCounter = 0x1000
	prog.RegFile.Write(regfile.X1, cpu.HLTAddr)
	return prog
}

func TestSequentialArithmetic(t *testing.T) {
	prog := newSeqProgram(seqAssemble(
		seqAddi(5, 0, 7),
		seqAddi(6, 0, 5),
		seqAdd(7, 5, 6),
		seqJalr(0, 1, 0),
	))
	d := sim.NewSequentialDriver(prog, prog.EntryPoint, true)
	d.Run()

	v5, _ := prog.RegFile.Read(regfile.X5)
	v6, _ := prog.RegFile.Read(regfile.X6)
	v7, _ := prog.RegFile.Read(regfile.X7)
	assert(t, v5 == 7, "x5: expected 7, got %d", v5)
	assert(t, v6 == 5, "x6: expected 5, got %d", v6)
	assert(t, v7 == 12, "x7: expected 12, got %d", v7)
	assert(t, prog.ProgramCounter == cpu.HLTAddr, "expected halt via x1, pc=%#x", prog.ProgramCounter)
	assert(t, d.Retired == 4, "expected 4 retired instructions, got %d", d.Retired)
	assert(t, d.CPI() >= 5, "sequential CPI should be floored at 5 per instruction, got %f", d.CPI())
}

func TestSequentialStoreLoadRoundTrip(t *testing.T) {
	prog := newSeqProgram(seqAssemble(
		seqAddi(5, 0, 0x10),
		seqSd(28, 5, 0),
		seqLd(6, 28, 0),
		seqJalr(0, 1, 0),
	))
	prog.RegFile.Write(regfile.X28, 0x2000)
	d := sim.NewSequentialDriver(prog, prog.EntryPoint, true)
	d.Run()

	v6, _ := prog.RegFile.Read(regfile.X6)
	assert(t, v6 == 0x10, "x6: expected 0x10, got %#x", v6)
}

func TestSequentialTakenBranchSkipsInstruction(t *testing.T) {
	prog := newSeqProgram(seqAssemble(
		seqAddi(5, 0, 3),
		seqAddi(6, 0, 3),
		seqBeq(5, 6, 8),
		seqAddi(7, 0, 99),
		seqAddi(8, 0, 1),
		seqJalr(0, 1, 0),
	))
	d := sim.NewSequentialDriver(prog, prog.EntryPoint, true)
	d.Run()

	v7, _ := prog.RegFile.Read(regfile.X7)
	v8, _ := prog.RegFile.Read(regfile.X8)
	assert(t, v7 == 0, "x7: branch target should have been skipped, got %d", v7)
	assert(t, v8 == 1, "x8: expected 1, got %d", v8)
	// Every entered loop iteration counts: addi, addi, beq, addi(x8), jalr.
	assert(t, d.Retired == 5, "expected 5 retired loop iterations, got %d", d.Retired)
}

func TestSequentialDivideByZeroHalts(t *testing.T) {
	prog := newSeqProgram(seqAssemble(
		seqAddi(5, 0, 10),
		seqAdd(6, 0, 0),
		seqDiv(7, 5, 6),
		seqJalr(0, 1, 0),
	))
	d := sim.NewSequentialDriver(prog, prog.EntryPoint, true)
	d.Run()

	assert(t, prog.ProgramCounter == cpu.HLTAddr, "expected halt after divide by zero")
	assert(t, prog.RegFile.Pending(regfile.X7) == 0, "x7 write-pending must be restored to 0")
	v7, ok := prog.RegFile.Read(regfile.X7)
	assert(t, ok && v7 == 0, "x7 must be left unchanged at 0, got %d ok=%v", v7, ok)
	// The faulting div is itself counted (§4.5 counts every entered loop
	// iteration), but the closing jalr never runs since PC goes straight
	// to HLT_ADDR from the fault.
	assert(t, d.Retired == 3, "expected 3 retired loop iterations (addi, add, div), got %d", d.Retired)
}

func TestSequentialCPIStartsAtConfiguredPC(t *testing.T) {
	prog := newSeqProgram(seqAssemble(
		seqAddi(5, 0, 1),
		seqAddi(6, 0, 2),
		seqAdd(7, 5, 6),
		seqJalr(0, 1, 0),
	))
	// Start counting from the third instruction (the add) onward.
	startPC := prog.EntryPoint + 8
	d := sim.NewSequentialDriver(prog, startPC, true)
	d.Run()

	assert(t, d.Retired == 2, "expected 2 retirements counted from startPC onward, got %d", d.Retired)
}

func TestSequentialIdempotentHaltFromHltAddr(t *testing.T) {
	prog := newSeqProgram(seqAssemble(seqJalr(0, 1, 0)))
	d := sim.NewSequentialDriver(prog, prog.EntryPoint, true)
	d.Run()
	assert(t, prog.ProgramCounter == cpu.HLTAddr, "expected halt, pc=%#x", prog.ProgramCounter)

	// Running again from an already-halted program observes pc ==
	// HLT_ADDR immediately and reports zero further retirements.
	before := d.Retired
	d.Run()
	assert(t, d.Retired == before, "re-running from HLT_ADDR must not retire anything further, got %d more", d.Retired-before)
}
