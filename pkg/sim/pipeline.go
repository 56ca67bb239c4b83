package sim

import (
	"rv64sim/pkg/cpu"
	"rv64sim/pkg/isa"
)

// PipelineDriver models the five-stage pipeline: Decode, Execute,
// mul_phase2, Memory, and Writeback slots, each holding at most one
// in-flight Instruction, advanced back-to-front every cycle (§4.6).
// Fetch has no persistent slot of its own; it only fills Decode.
type PipelineDriver struct {
	Prog  *Program
	Quiet bool

	// StartPC is the configured start PC; CPI collection begins the
	// first cycle a fetched PC equals it (§4.6).
	StartPC uint64

	decode    *cpu.Instruction
	execute   *cpu.Instruction
	mulPhase2 *cpu.Instruction
	memory    *cpu.Instruction
	writeback *cpu.Instruction

	fetchPC uint64
	halted  bool // a fault or HLT_ADDR fetch stopped further fetching; drain what remains

	Cycles         uint64
	Retired        uint64
	DataHazards    uint64
	ControlHazards uint64

	countingCPI bool
}

// NewPipelineDriver builds a driver around prog, fetching from its
// current program counter.
func NewPipelineDriver(prog *Program, startPC uint64, quiet bool) *PipelineDriver {
	return &PipelineDriver{Prog: prog, StartPC: startPC, Quiet: quiet, fetchPC: prog.ProgramCounter}
}

// CPI reports cycles-per-retired-instruction measured since StartPC was
// first fetched.
func (d *PipelineDriver) CPI() float64 {
	if d.Retired == 0 {
		return 0
	}
	return float64(d.Cycles) / float64(d.Retired)
}

// Run drives the pipeline one cycle at a time until every slot is empty
// and no further fetch is possible.
func (d *PipelineDriver) Run() {
	for !d.drained() {
		d.cycle()
	}
}

func (d *PipelineDriver) drained() bool {
	return d.halted && d.decode == nil && d.execute == nil &&
		d.mulPhase2 == nil && d.memory == nil && d.writeback == nil
}

func (d *PipelineDriver) cycle() {
	d.Cycles++
	d.Prog.RegFile.ClearForwarding()

	d.stepWriteback()
	d.stepMemory()
	d.stepMulPhase2()
	d.stepExecute()
	d.stepDecode()
	d.stepFetch()
}

func (d *PipelineDriver) stepWriteback() {
	if d.writeback == nil {
		return
	}
	in := *d.writeback
	_, err := in.Advance(d.Prog)
	// Writeback always retires; the error is always *cpu.Retired.
	_ = err
	d.writeback = nil
	if d.countingCPI {
		d.Retired++
	}
}

func (d *PipelineDriver) stepMemory() {
	if d.memory == nil || d.writeback != nil {
		return
	}
	in := *d.memory
	result, err := in.Advance(d.Prog)
	if err != nil {
		d.haltFetch()
		d.memory = nil
		return
	}
	d.memory = nil
	d.writeback = &result
}

func (d *PipelineDriver) stepMulPhase2() {
	if d.mulPhase2 == nil || d.memory != nil {
		return
	}
	in := *d.mulPhase2
	result, err := in.Advance(d.Prog)
	if err != nil {
		d.haltFetch()
		d.mulPhase2 = nil
		return
	}
	d.mulPhase2 = nil
	d.memory = &result
}

func isMulFamily(k isa.Kind) bool {
	switch k {
	case isa.Mul, isa.Mulh:
		return true
	default:
		return false
	}
}

func (d *PipelineDriver) stepExecute() {
	if d.execute == nil {
		return
	}

	in := *d.execute
	kind := in.Op.Kind
	migrating := isMulFamily(kind) && in.Progress == 0

	downstreamEmpty := d.memory == nil
	if migrating {
		downstreamEmpty = d.mulPhase2 == nil
	}
	if !downstreamEmpty {
		return // structural stall
	}

	result, err := in.Advance(d.Prog)
	if err != nil {
		retired := err.(*cpu.Retired)
		if kind.IsBranch() {
			d.ControlHazards++
			d.flush()
			d.fetchPC = retired.NextPC
		} else {
			d.haltFetch()
		}
		d.execute = nil
		return
	}

	if result.Stage == cpu.Execute {
		if migrating && result.Progress > 0 {
			d.execute = nil
			d.mulPhase2 = &result
		} else {
			d.execute = &result
		}
		return
	}

	// result.Stage == cpu.Memory: ordinary completion, or a jal/jalr
	// whose corrected target is now known.
	if kind == isa.Jal || kind == isa.Jalr {
		d.ControlHazards++
		d.flush()
		d.fetchPC = result.NextPC
	}
	d.execute = nil
	d.memory = &result
}

// flush discards the speculatively-fetched Decode occupant and the
// mul_phase2 slot on a control hazard (§4.6: "flush ... all slots
// earlier than Execute and the mul_phase2 slot"). Decode never holds a
// register lock (Lock happens atomically with the transition into
// Execute), so only mul_phase2's destination, if any, needs reconciling
// -- the open point §9 flags about lock release on abort.
func (d *PipelineDriver) flush() {
	d.decode = nil
	if d.mulPhase2 != nil {
		if d.mulPhase2.Op.Kind.HasDest() {
			d.Prog.RegFile.Unlock(d.mulPhase2.Op.Rd)
		}
		d.mulPhase2 = nil
	}
}

// haltFetch stops all future fetching after a fatal runtime fault (§7).
// The faulting instruction's own stage has already unlocked any
// destination it held; Decode, which never locks, is simply discarded.
func (d *PipelineDriver) haltFetch() {
	d.halted = true
	d.fetchPC = cpu.HLTAddr
	d.decode = nil
}

func (d *PipelineDriver) stepDecode() {
	if d.decode == nil || d.execute != nil {
		return
	}
	in := *d.decode
	result, err := in.Advance(d.Prog)
	if err != nil {
		d.haltFetch()
		d.decode = nil
		return
	}
	if result.Stage == cpu.Decode {
		d.DataHazards++
		d.decode = &result
		return
	}
	d.decode = nil
	d.execute = &result
}

func (d *PipelineDriver) stepFetch() {
	if d.decode != nil || d.halted {
		return
	}

	if !d.countingCPI && d.fetchPC == d.StartPC {
		d.countingCPI = true
	}

	if d.fetchPC == cpu.HLTAddr {
		d.halted = true
		return
	}

	if name, ok := d.Prog.LibraryFuncs[d.fetchPC]; ok {
		next, ready := d.Prog.invokeLibraryFunc(name, d.fetchPC)
		if !ready {
			d.DataHazards++
			return
		}
		d.fetchPC = next
		return
	}

	d.Prog.ProgramCounter = d.fetchPC
	in := cpu.Instruction{Stage: cpu.Fetch}
	result, err := in.Advance(d.Prog)
	if err != nil {
		d.haltFetch()
		return
	}
	d.fetchPC = result.NextPC
	d.decode = &result
}
