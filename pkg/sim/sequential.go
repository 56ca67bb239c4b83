package sim

import "rv64sim/pkg/cpu"

// SequentialDriver retires one Instruction to completion before fetching
// the next, exactly the original's sim() loop (§4.5): update PC
// (intercepting simulated library calls), test for HLT_ADDR, fetch, then
// advance repeatedly until retirement.
type SequentialDriver struct {
	Prog  *Program
	Quiet bool

	// StartPC is the configured start PC (§4.5: "entry or main"); CPI
	// collection begins the first cycle the program counter equals it.
	StartPC uint64

	// Debugger, if set, is consulted once per loop iteration after the
	// HLT_ADDR check and before fetch, matching where the original's
	// sim() loop calls interactive_cli (§6).
	Debugger Debugger

	Cycles  uint64
	Retired uint64

	countingCPI bool
}

// Debugger is the narrow interface SequentialDriver needs from
// pkg/debugger, kept here rather than imported directly to avoid a
// dependency cycle (pkg/debugger depends on pkg/sim for Program).
type Debugger interface {
	Prompt()
}

// NewSequentialDriver builds a driver around prog, starting CPI
// collection once the PC first reaches startPC.
func NewSequentialDriver(prog *Program, startPC uint64, quiet bool) *SequentialDriver {
	return &SequentialDriver{Prog: prog, StartPC: startPC, Quiet: quiet}
}

// CPI reports cycles-per-retired-instruction measured since StartPC was
// first reached. Zero retirements yields 0.
func (d *SequentialDriver) CPI() float64 {
	if d.Retired == 0 {
		return 0
	}
	return float64(d.Cycles) / float64(d.Retired)
}

// Run executes the program to completion (a fetch from HLT_ADDR).
func (d *SequentialDriver) Run() {
	prog := d.Prog
	next := prog.ProgramCounter

	for {
		if name, ok := prog.LibraryFuncs[next]; ok {
			nextPC, _ := prog.invokeLibraryFunc(name, next)
			next = nextPC
		}
		prog.ProgramCounter = next

		if !d.countingCPI && prog.ProgramCounter == d.StartPC {
			d.countingCPI = true
		}

		if prog.ProgramCounter == cpu.HLTAddr {
			return
		}

		if d.Debugger != nil {
			d.Debugger.Prompt()
		}

		in := cpu.Instruction{Stage: cpu.Fetch}
		measured := 0
		var err error
		for {
			in, err = in.Advance(prog)
			measured++
			if err != nil {
				break
			}
		}
		retired := err.(*cpu.Retired)
		next = retired.NextPC

		// §4.5 counts every fetch-to-retirement loop iteration entered
		// while pc != HLT_ADDR as one sequential instruction, independent
		// of which stage produced the Err -- unlike the pipeline driver,
		// which only retires at Writeback. Only the pre-fetch HLT_ADDR
		// check above reports zero further retirements.
		if d.countingCPI {
			cycles := measured
			if cycles < 5 {
				cycles = 5
			}
			d.Cycles += uint64(cycles)
			d.Retired++
		}
	}
}
