package cpu

import "rv64sim/pkg/regfile"

// AddressSpace is the subset of the address space an Instruction needs to
// fetch and to service loads/stores (§4.3).
type AddressSpace interface {
	Load(addr uint64, length int, isFetch bool) (data []byte, remaining int, ok bool)
	Store(addr uint64, data []byte) bool
}

// Registers is the subset of the register file an Instruction needs during
// Decode, Execute, and Writeback (§4.2).
type Registers interface {
	Read(id regfile.RegID) (uint64, bool)
	Write(id regfile.RegID, value uint64)
	Lock(id regfile.RegID)
	Unlock(id regfile.RegID)
	Forward(id regfile.RegID, value uint64)
}

// Core is the program-image context an Instruction advances against. It is
// implemented by pkg/sim's Program, kept as a narrow interface here so that
// pkg/cpu has no dependency on the driver package.
type Core interface {
	PC() uint64
	Memory() AddressSpace
	Registers() Registers
	// Warn reports a non-fatal diagnostic the way the original's
	// "[Warning]"-prefixed console lines did (§7).
	Warn(format string, args ...any)
}
