package sim_test

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"rv64sim/pkg/cpu"
	"rv64sim/pkg/memory"
	"rv64sim/pkg/regfile"
	"rv64sim/pkg/sim"
)

func encodeR(opcode, rd, func3, rs1, rs2, func7 uint32) uint32 {
	return func7<<25 | rs2<<20 | rs1<<15 | func3<<12 | rd<<7 | opcode
}

func encodeI(opcode, rd, func3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)<<20&0xFFF00000 | rs1<<15 | func3<<12 | rd<<7 | opcode
}

func encodeB(rs1, rs2 uint32, imm int32, func3 uint32) uint32 {
	u := uint32(imm)
	b12 := (u >> 12) & 1
	b11 := (u >> 11) & 1
	b10_5 := (u >> 5) & 0x3F
	b4_1 := (u >> 1) & 0xF
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | func3<<12 | b4_1<<8 | b11<<7 | 0x63
}

func addi(rd, rs1 uint32, imm int32) uint32 { return encodeI(0x13, rd, 0, rs1, imm) }
func add(rd, rs1, rs2 uint32) uint32        { return encodeR(0x33, rd, 0, rs1, rs2, 0x00) }
func div(rd, rs1, rs2 uint32) uint32        { return encodeR(0x33, rd, 4, rs1, rs2, 0x01) }
func beq(rs1, rs2 uint32, imm int32) uint32 { return encodeB(rs1, rs2, imm, 0) }
func jalr(rd, rs1 uint32, imm int32) uint32 { return encodeI(0x67, rd, 0, rs1, imm) }

func assemble(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

// newProgram builds a tiny program image with one code VMA at 0x1000 and
// one data VMA at 0x2000, matching the end-to-end scenarios of §8.
func newProgram(code []byte, forwarding bool) *sim.Program {
	codeBytes := make([]byte, 0x100)
	copy(codeBytes, code)
	space := memory.New([]memory.VMA{
		{Base: 0x1000, Size: 0x100, Readable: true, Executable: true, Bytes: codeBytes},
		{Base: 0x2000, Size: 64, Readable: true, Writable: true, Bytes: make([]byte, 64)},
	})
	regs := regfile.New(forwarding)
	prog := sim.NewProgram(regs, space)
	prog.EntryPoint = 0x1000
	prog.ProgramCounter = 0x1000
	prog.RegFile.Write(regfile.X1, cpu.HLTAddr)
	return prog
}

var _ = Describe("PipelineDriver", func() {
	It("skips the branch target on a taken conditional branch and counts one control hazard", func() {
		prog := newProgram(assemble(
			addi(5, 0, 3),
			addi(6, 0, 3),
			beq(5, 6, 8),
			addi(7, 0, 99),
			addi(8, 0, 1),
			jalr(0, 1, 0),
		), false)

		d := sim.NewPipelineDriver(prog, prog.EntryPoint, true)
		d.Run()

		x7, _ := prog.RegFile.Read(regfile.X7)
		x8, _ := prog.RegFile.Read(regfile.X8)
		Expect(x7).To(BeEquivalentTo(0))
		Expect(x8).To(BeEquivalentTo(1))
		// One for the taken beq, one for the closing jalr that halts via ra.
		Expect(d.ControlHazards).To(BeEquivalentTo(2))
	})

	It("halts cleanly on divide by zero and restores the destination's write-pending count", func() {
		prog := newProgram(assemble(
			addi(5, 0, 10),
			add(6, 0, 0),
			div(7, 5, 6),
			jalr(0, 1, 0),
		), false)

		d := sim.NewPipelineDriver(prog, prog.EntryPoint, true)
		d.Run()

		Expect(prog.RegFile.Pending(regfile.X7)).To(BeEquivalentTo(0))
		x7, ok := prog.RegFile.Read(regfile.X7)
		Expect(ok).To(BeTrue())
		Expect(x7).To(BeEquivalentTo(0))
	})

	It("completes a dependent add without a Decode stall when forwarding is enabled", func() {
		prog := newProgram(assemble(
			addi(5, 0, 1),
			add(6, 5, 5),
			jalr(0, 1, 0),
		), true)

		d := sim.NewPipelineDriver(prog, prog.EntryPoint, true)
		d.Run()

		x6, _ := prog.RegFile.Read(regfile.X6)
		Expect(x6).To(BeEquivalentTo(2))
		Expect(d.DataHazards).To(BeEquivalentTo(0))
	})

	It("records at least one data-hazard cycle for the same dependency when forwarding is disabled", func() {
		prog := newProgram(assemble(
			addi(5, 0, 1),
			add(6, 5, 5),
			jalr(0, 1, 0),
		), false)

		d := sim.NewPipelineDriver(prog, prog.EntryPoint, false)
		d.Run()

		x6, _ := prog.RegFile.Read(regfile.X6)
		Expect(x6).To(BeEquivalentTo(2))
		Expect(d.DataHazards).To(BeNumerically(">=", 1))
	})

	It("reports retirements and a positive CPI when counting from the entry point", func() {
		prog := newProgram(assemble(
			addi(5, 0, 7),
			addi(6, 0, 5),
			add(7, 5, 6),
			jalr(0, 1, 0),
		), false)

		d := sim.NewPipelineDriver(prog, prog.EntryPoint, true)
		d.Run()

		Expect(d.Retired).To(BeNumerically(">", 0))
		Expect(d.CPI()).To(BeNumerically(">", 0))
	})
})
