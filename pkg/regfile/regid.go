// Package regfile implements the RV64I general-purpose register file: the
// 32 integer registers, their ABI names, and the write-lock/forwarding
// bookkeeping the pipeline driver needs to detect and resolve data hazards.
package regfile

import (
	"fmt"
	"strings"
)

// RegID identifies one of the 32 RV64I general-purpose registers.
type RegID uint8

// The following constants enumerate the 32 RV64I integer registers.
const (
	X0 = RegID(iota)
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	X31

	// NumRegisters is the number of general-purpose registers.
	NumRegisters = 32
)

var abiNames = [NumRegisters]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var descriptions = [NumRegisters]string{
	"hardwired zero", "return address", "stack pointer", "global pointer",
	"thread pointer", "temporary register 0", "temporary register 1", "temporary register 2",
	"saved register 0 / frame pointer", "saved register 1", "function argument 0 / return value 0",
	"function argument 1 / return value 1", "function argument 2", "function argument 3",
	"function argument 4", "function argument 5", "function argument 6", "function argument 7",
	"saved register 2", "saved register 3", "saved register 4", "saved register 5",
	"saved register 6", "saved register 7", "saved register 8", "saved register 9",
	"saved register 10", "saved register 11", "temporary register 3", "temporary register 4",
	"temporary register 5", "temporary register 6",
}

// ABIName returns the calling-convention name of the register (e.g. "a0").
func (id RegID) ABIName() string {
	if int(id) >= NumRegisters {
		return fmt.Sprintf("x%d", id)
	}
	return abiNames[id]
}

// Description returns a one-line description of the register's conventional role.
func (id RegID) Description() string {
	if int(id) >= NumRegisters {
		return "unknown"
	}
	return descriptions[id]
}

// String implements fmt.Stringer, printing the ABI name.
func (id RegID) String() string {
	return id.ABIName()
}

// LookupABIName finds the RegID whose ABI name matches name, case-insensitively.
// Used by the interactive debugger's "p <reg>" command.
func LookupABIName(name string) (RegID, bool) {
	for i, n := range abiNames {
		if strings.EqualFold(n, name) {
			return RegID(i), true
		}
	}
	return 0, false
}
