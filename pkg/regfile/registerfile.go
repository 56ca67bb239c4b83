package regfile

import (
	"fmt"
	"strings"
)

// File holds the fixed array of 32 RV64I registers. X0 always reads as
// zero, regardless of its write-pending count, and silently discards
// writes (§3 "Register" invariant).
type File struct {
	registers [NumRegisters]Register
}

// New constructs a register file. enableForwarding controls whether
// Forward/Read honour the per-cycle forwarding slot; with it disabled,
// Decode strictly waits until writeback completes (§4.2).
func New(enableForwarding bool) *File {
	f := &File{}
	for i := range f.registers {
		f.registers[i] = newRegister(RegID(i), enableForwarding)
	}
	return f
}

// Read implements the register-file read contract of §4.2.
func (f *File) Read(id RegID) (uint64, bool) {
	if id == X0 {
		return 0, true
	}
	return f.registers[id].Read()
}

// Write commits val to register id. A no-op for X0.
func (f *File) Write(id RegID, val uint64) {
	if id == X0 {
		return
	}
	f.registers[id].Write(val)
}

// Lock claims register id as a pending destination.
func (f *File) Lock(id RegID) {
	f.registers[id].Lock()
}

// Unlock releases a previously claimed destination.
func (f *File) Unlock(id RegID) {
	f.registers[id].Unlock()
}

// Forward records a same-cycle forwarded value for register id.
func (f *File) Forward(id RegID, val uint64) {
	f.registers[id].Forward(val)
}

// ClearForwarding discards all forwarded values. Called once per pipeline
// cycle, before any stage advances (§4.2, §5).
func (f *File) ClearForwarding() {
	for i := range f.registers {
		f.registers[i].ClearForwarding()
	}
}

// Pending reports register id's write-pending count.
func (f *File) Pending(id RegID) int {
	return f.registers[id].Pending()
}

// Value reports register id's committed value, bypassing locks.
func (f *File) Value(id RegID) uint64 {
	if id == X0 {
		return 0
	}
	return f.registers[id].Value()
}

// Lookup finds a register by ABI name (e.g. "a0", "sp"), for the debugger.
func (f *File) Lookup(name string) (RegID, bool) {
	return LookupABIName(name)
}

// String renders the register file two-per-line, ABI name and hex value,
// mirroring the teacher's vm.String() dump.
func (f *File) String() string {
	var b strings.Builder
	for i := 0; i < NumRegisters; i++ {
		fmt.Fprintf(&b, "%-4s: %016x  ", RegID(i), f.Value(RegID(i)))
		if i%2 == 1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
