package cpu

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"rv64sim/pkg/isa"
	"rv64sim/pkg/regfile"
)

// Retired is returned by Advance when an instruction leaves the pipeline,
// either by completing Writeback or by aborting early (a fatal fault, or a
// taken branch discovered in Execute; jal/jalr set NextPC in Execute and
// still retire at Writeback). NextPC is the program counter
// the driver should use next; NextPC == HLTAddr means the simulator halts.
// Mirrors the original's `Result<Self, u64>` Err arm (§4.4), expressed as
// Go's sentinel-error-carries-payload idiom rather than a second return
// value, since "this instruction is gone" and "here is the payload" are a
// single fact.
type Retired struct {
	NextPC uint64
}

func (r *Retired) Error() string {
	return fmt.Sprintf("instruction retired, next pc %#x", r.NextPC)
}

const (
	mulCycles   = 2
	divRemCycles = 40
)

// Instruction is the mutable runtime carrier of one decoded Op through the
// stage machine (§3 "Instruction object"). The zero value is ready to fetch.
type Instruction struct {
	Op       isa.Op
	PC       uint64
	NextPC   uint64
	Stage    Stage
	Progress int

	V1, V2, Ve, Vm uint64
}

// Advance runs one cycle of the stage machine. A nil error means the
// instruction is still in flight (it may have stalled in place or moved to
// the next stage); a non-nil error is always a *Retired.
func (in Instruction) Advance(core Core) (Instruction, error) {
	switch in.Stage {
	case Fetch:
		return in.advanceFetch(core)
	case Decode:
		return in.advanceDecode(core)
	case Execute:
		return in.advanceExecute(core)
	case Memory:
		return in.advanceMemory(core)
	case Writeback:
		return in.advanceWriteback(core)
	default:
		return in, &Retired{NextPC: HLTAddr}
	}
}

func halt(core Core, format string, args ...any) (Instruction, error) {
	core.Warn(format, args...)
	return Instruction{}, &Retired{NextPC: HLTAddr}
}

func (in Instruction) advanceFetch(core Core) (Instruction, error) {
	if core.PC() == HLTAddr {
		return in, &Retired{NextPC: HLTAddr}
	}

	data, rem, ok := core.Memory().Load(core.PC(), 4, true)
	if !ok {
		return halt(core, "cannot fetch from %#x", core.PC())
	}
	if rem != 0 {
		return halt(core, "fetching from %#x across VMAs", core.PC())
	}

	raw := binary.LittleEndian.Uint32(data)
	op, length := isa.Decode(uint16(raw), uint16(raw>>16))

	in.Op = op
	in.PC = core.PC()
	in.NextPC = core.PC() + uint64(length)/8

	if op.Kind.IsTerminal() {
		return halt(core, "%s", isa.Disassemble(op))
	}

	in.Stage = Decode
	return in, nil
}

func (in Instruction) advanceDecode(core Core) (Instruction, error) {
	regs := core.Registers()
	op := in.Op

	readOrStall := func(id regfile.RegID) (uint64, bool) {
		return regs.Read(id)
	}

	switch {
	case op.Kind == isa.Ecall:
		v1, ok1 := readOrStall(regfile.X10)
		v2, ok2 := readOrStall(regfile.X11)
		ve, ok3 := readOrStall(regfile.X17)
		if !ok1 || !ok2 || !ok3 {
			return in, nil // stall
		}
		in.V1, in.V2, in.Ve = v1, v2, ve
		in.Stage = Execute
		return in, nil

	case isTwoSourceOp(op.Kind):
		v1, ok1 := readOrStall(op.Rs1)
		v2, ok2 := readOrStall(op.Rs2)
		if !ok1 || !ok2 {
			return in, nil
		}
		in.V1, in.V2 = v1, v2
		if op.Kind.IsBranch() {
			in.Stage = Execute
			return in, nil
		}
		if op.Kind.IsStore() {
			in.Stage = Execute
			return in, nil
		}
		regs.Lock(op.Rd)
		in.Stage = Execute
		return in, nil

	case isOneSourceOp(op.Kind):
		v1, ok1 := readOrStall(op.Rs1)
		if !ok1 {
			return in, nil
		}
		in.V1 = v1
		regs.Lock(op.Rd)
		in.Stage = Execute
		return in, nil

	case isNoSourceOp(op.Kind):
		regs.Lock(op.Rd)
		in.Stage = Execute
		return in, nil

	default:
		return halt(core, "cannot decode operands for %s", isa.Disassemble(op))
	}
}

func isTwoSourceOp(k isa.Kind) bool {
	switch k {
	case isa.Add, isa.Sub, isa.And, isa.Or, isa.Xor, isa.Sll, isa.Srl, isa.Sra,
		isa.Slt, isa.Sltu, isa.Mul, isa.Mulh, isa.Div, isa.Rem,
		isa.Addw, isa.Subw, isa.Mulw, isa.Divw, isa.Sllw, isa.Srlw, isa.Sraw, isa.Remw,
		isa.Beq, isa.Bne, isa.Blt, isa.Bge, isa.Bltu, isa.Bgeu,
		isa.Sb, isa.Sh, isa.Sw, isa.Sd:
		return true
	default:
		return false
	}
}

func isOneSourceOp(k isa.Kind) bool {
	switch k {
	case isa.Lb, isa.Lbu, isa.Lh, isa.Lhu, isa.Lw, isa.Lwu, isa.Ld,
		isa.Addi, isa.Slli, isa.Slliw, isa.Slti, isa.Sltiu, isa.Xori,
		isa.Srli, isa.Srliw, isa.Srai, isa.Sraiw, isa.Ori, isa.Andi, isa.Addiw,
		isa.Jalr:
		return true
	default:
		return false
	}
}

func isNoSourceOp(k isa.Kind) bool {
	switch k {
	case isa.Auipc, isa.Lui, isa.Jal:
		return true
	default:
		return false
	}
}

func (in Instruction) advanceExecute(core Core) (Instruction, error) {
	regs := core.Registers()
	op := in.Op

	switch op.Kind {
	case isa.Add:
		in.Ve = in.V1 + in.V2
	case isa.Sub:
		in.Ve = in.V1 - in.V2
	case isa.And:
		in.Ve = in.V1 & in.V2
	case isa.Or:
		in.Ve = in.V1 | in.V2
	case isa.Xor:
		in.Ve = in.V1 ^ in.V2
	case isa.Sll:
		in.Ve = in.V1 << (in.V2 & 63)
	case isa.Srl:
		in.Ve = in.V1 >> (in.V2 & 63)
	case isa.Sra:
		in.Ve = uint64(int64(in.V1) >> (in.V2 & 63))
	case isa.Slt:
		in.Ve = boolU64(int64(in.V1) < int64(in.V2))
	case isa.Sltu:
		in.Ve = boolU64(in.V1 < in.V2)

	case isa.Mul:
		if in.Progress < mulCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = uint64(int64(in.V1) * int64(in.V2))
	case isa.Mulh:
		if in.Progress < mulCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = mulh(int64(in.V1), int64(in.V2))
	case isa.Div:
		if in.V2 == 0 {
			regs.Unlock(op.Rd)
			return halt(core, "divide by zero at %#x", in.PC)
		}
		if in.Progress < divRemCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = uint64(int64(in.V1) / int64(in.V2))
	case isa.Rem:
		if in.V2 == 0 {
			regs.Unlock(op.Rd)
			return halt(core, "remainder by zero at %#x", in.PC)
		}
		if in.Progress < divRemCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = uint64(int64(in.V1) % int64(in.V2))

	case isa.Addw:
		in.Ve = signExtend32(uint32(in.V1) + uint32(in.V2))
	case isa.Subw:
		in.Ve = signExtend32(uint32(in.V1) - uint32(in.V2))
	case isa.Mulw:
		in.Ve = signExtend32(uint32(in.V1) * uint32(in.V2))
	case isa.Divw:
		if int32(in.V2) == 0 {
			regs.Unlock(op.Rd)
			return halt(core, "divide by zero at %#x", in.PC)
		}
		if in.Progress < divRemCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = signExtend32(uint32(int32(in.V1) / int32(in.V2)))
	case isa.Remw:
		if int32(in.V2) == 0 {
			regs.Unlock(op.Rd)
			return halt(core, "remainder by zero at %#x", in.PC)
		}
		if in.Progress < divRemCycles-1 {
			in.Progress++
			return in, nil
		}
		in.Ve = signExtend32(uint32(int32(in.V1) % int32(in.V2)))
	case isa.Sllw:
		in.Ve = signExtend32(uint32(in.V1) << (uint32(in.V2) & 0x1F))
	case isa.Srlw:
		in.Ve = signExtend32(uint32(in.V1) >> (uint32(in.V2) & 0x1F))
	case isa.Sraw:
		in.Ve = uint64(int64(int32(in.V1) >> (uint32(in.V2) & 0x1F)))

	case isa.Lb, isa.Lbu, isa.Lh, isa.Lhu, isa.Lw, isa.Lwu, isa.Ld,
		isa.Sb, isa.Sh, isa.Sw, isa.Sd:
		in.Ve = uint64(int64(in.V1) + op.Imm)
		in.Stage = Memory
		return in, nil

	case isa.Addi:
		in.Ve = uint64(int64(in.V1) + op.Imm)
	case isa.Slli:
		in.Ve = in.V1 << uint(op.Imm&63)
	case isa.Slliw:
		in.Ve = signExtend32(uint32(in.V1) << uint(op.Imm&31))
	case isa.Slti:
		in.Ve = boolU64(int64(in.V1) < op.Imm)
	case isa.Sltiu:
		in.Ve = boolU64(in.V1 < uint64(op.Imm))
	case isa.Xori:
		in.Ve = in.V1 ^ uint64(op.Imm)
	case isa.Srli:
		in.Ve = in.V1 >> uint(op.Imm&63)
	case isa.Srliw:
		in.Ve = signExtend32(uint32(in.V1) >> uint(op.Imm&31))
	case isa.Srai:
		in.Ve = uint64(int64(in.V1) >> uint(op.Imm&63))
	case isa.Sraiw:
		in.Ve = uint64(int64(int32(in.V1) >> uint(op.Imm&31)))
	case isa.Ori:
		in.Ve = in.V1 | uint64(op.Imm)
	case isa.Andi:
		in.Ve = in.V1 & uint64(op.Imm)
	case isa.Addiw:
		in.Ve = signExtend32(uint32(int64(in.V1) + op.Imm))

	case isa.Jalr:
		in.Ve = in.PC + 4
		in.NextPC = uint64(int64(in.V1)+op.Imm) &^ 1
		regs.Forward(op.Rd, in.Ve)
		in.Stage = Memory
		return in, nil

	case isa.Ecall:
		retired, err := in.execEcall(core)
		if err != nil {
			return retired, err
		}
		in.Stage = Memory
		return in, nil

	case isa.Beq:
		if in.V1 == in.V2 {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil
	case isa.Bne:
		if in.V1 != in.V2 {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil
	case isa.Blt:
		if int64(in.V1) < int64(in.V2) {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil
	case isa.Bge:
		if int64(in.V1) >= int64(in.V2) {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil
	case isa.Bltu:
		if in.V1 < in.V2 {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil
	case isa.Bgeu:
		if in.V1 >= in.V2 {
			return in, &Retired{NextPC: uint64(int64(in.PC) + op.Imm)}
		}
		in.Stage = Memory
		return in, nil

	case isa.Auipc:
		in.Ve = uint64(int64(in.PC) + op.Imm)
	case isa.Lui:
		in.Ve = uint64(op.Imm)
	case isa.Jal:
		in.Ve = in.PC + 4
		in.NextPC = uint64(int64(in.PC) + op.Imm)
		regs.Forward(op.Rd, in.Ve)
		in.Stage = Memory
		return in, nil

	default:
		return halt(core, "cannot execute %s", isa.Disassemble(op))
	}

	if op.Kind.HasDest() {
		regs.Forward(op.Rd, in.Ve)
	}
	in.Stage = Memory
	return in, nil
}

func (in Instruction) execEcall(core Core) (Instruction, error) {
	switch in.Ve {
	case 57:
		return halt(core, "ecall (a7=57) is close(), not simulated")
	case 62:
		return halt(core, "ecall (a7=62) is lseek(), not simulated")
	case 63:
		return halt(core, "ecall (a7=63) is read(), not simulated")
	case 64:
		return halt(core, "ecall (a7=64) is write(), not simulated")
	case 80:
		return halt(core, "ecall (a7=80) is fstat(), not simulated")
	case 93:
		return halt(core, "ecall (a7=93) is exit(), exiting")
	case 214:
		return halt(core, "ecall (a7=214) is sbrk(), not simulated")
	}

	switch in.V1 {
	case 10:
		return halt(core, "ecall (a0=10), exiting")
	case 1:
		core.Warn("ecall (a0=1), print a1 = %#x", in.V2)
		return in, nil
	default:
		return halt(core, "ecall (a7=%d) is unknown, aborting", in.Ve)
	}
}

func (in Instruction) advanceMemory(core Core) (Instruction, error) {
	regs := core.Registers()
	op := in.Op

	loadWidth := func(width int) (Instruction, error) {
		data, rem, ok := core.Memory().Load(in.Ve, width, false)
		if !ok {
			regs.Unlock(op.Rd)
			return halt(core, "cannot access memory at %#x", in.Ve)
		}
		if rem != 0 {
			regs.Unlock(op.Rd)
			return halt(core, "access memory at %#x across VMAs", in.Ve)
		}
		in.Vm = extendLoad(op.Kind, data)
		regs.Forward(op.Rd, in.Vm)
		in.Stage = Writeback
		return in, nil
	}

	storeWidth := func(width int) (Instruction, error) {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], in.V2)
		if !core.Memory().Store(in.Ve, buf[:width]) {
			return halt(core, "cannot access memory at %#x", in.Ve)
		}
		in.Stage = Writeback
		return in, nil
	}

	switch op.Kind {
	case isa.Lb, isa.Lbu:
		return loadWidth(1)
	case isa.Lh, isa.Lhu:
		return loadWidth(2)
	case isa.Lw, isa.Lwu:
		return loadWidth(4)
	case isa.Ld:
		return loadWidth(8)
	case isa.Sb:
		return storeWidth(1)
	case isa.Sh:
		return storeWidth(2)
	case isa.Sw:
		return storeWidth(4)
	case isa.Sd:
		return storeWidth(8)
	default:
		in.Stage = Writeback
		return in, nil
	}
}

func extendLoad(kind isa.Kind, data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)
	switch kind {
	case isa.Lb:
		return uint64(int64(int8(buf[0])))
	case isa.Lbu:
		return uint64(buf[0])
	case isa.Lh:
		return uint64(int64(int16(binary.LittleEndian.Uint16(buf[:2]))))
	case isa.Lhu:
		return uint64(binary.LittleEndian.Uint16(buf[:2]))
	case isa.Lw:
		return uint64(int64(int32(binary.LittleEndian.Uint32(buf[:4]))))
	case isa.Lwu:
		return uint64(binary.LittleEndian.Uint32(buf[:4]))
	case isa.Ld:
		return binary.LittleEndian.Uint64(buf[:8])
	default:
		return 0
	}
}

func (in Instruction) advanceWriteback(core Core) (Instruction, error) {
	regs := core.Registers()
	op := in.Op

	if op.Kind.HasDest() {
		if op.Kind.IsLoad() {
			regs.Write(op.Rd, in.Vm)
		} else {
			regs.Write(op.Rd, in.Ve)
		}
		regs.Unlock(op.Rd)
	}

	return in, &Retired{NextPC: in.NextPC}
}

func boolU64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func signExtend32(v uint32) uint64 {
	return uint64(int64(int32(v)))
}

// mulh returns the high 64 bits of the signed 128-bit product of two int64
// operands. bits.Mul64 gives the unsigned product; a sign correction
// recovers the signed high word (Hacker's Delight 8-2).
func mulh(a, b int64) uint64 {
	hi, _ := bits.Mul64(uint64(a), uint64(b))
	hi -= uint64(a>>63) & uint64(b)
	hi -= uint64(b>>63) & uint64(a)
	return hi
}
