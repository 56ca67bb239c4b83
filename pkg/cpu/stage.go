// Package cpu implements the per-instruction stage machine: the single
// `Advance` method that carries one decoded Op through Fetch, Decode,
// Execute, Memory, and Writeback with bit-exact RV64I/M integer semantics
// (§4.4).
package cpu

// Stage is one of the five pipeline stages an Instruction passes through.
type Stage uint8

const (
	Fetch Stage = iota
	Decode
	Execute
	Memory
	Writeback
)

func (s Stage) String() string {
	switch s {
	case Fetch:
		return "fetch"
	case Decode:
		return "decode"
	case Execute:
		return "execute"
	case Memory:
		return "memory"
	case Writeback:
		return "writeback"
	default:
		return "unknown"
	}
}

// HLTAddr is the sentinel program counter whose fetch terminates the
// simulator: 2^64 - 2.
const HLTAddr uint64 = 0xFFFFFFFFFFFFFFFE
