// Package sim implements the program image and the two timing drivers
// that run it: the sequential driver (§4.5), which retires one
// instruction to completion before fetching the next, and the pipeline
// driver (§4.6), which models the classic five-stage pipeline with
// hazard detection and optional forwarding.
package sim

import (
	"fmt"
	"log"
	"os"

	"rv64sim/pkg/cpu"
	"rv64sim/pkg/memory"
	"rv64sim/pkg/regfile"
)

var warnLog = log.New(os.Stderr, "", 0)

// FuncRecord is one entry of a program's symbol-table-derived function
// list: used by the debugger's "b <func>" and "disass <func>" commands.
type FuncRecord struct {
	Start uint64
	Size  uint64
	Name  string
}

// Program is the loaded, running image: registers, address space, the
// entry point, and the bookkeeping the loader and debugger need. It
// implements cpu.Core so that cpu.Instruction.Advance can run against it
// directly.
type Program struct {
	EntryPoint     uint64
	ProgramCounter uint64

	RegFile      *regfile.File
	AddressSpace *memory.AddressSpace

	// LibraryFuncs maps an address to the name of the simulated library
	// routine it represents (§6).
	LibraryFuncs map[uint64]string
	Funcs        []FuncRecord

	// Breakpoints is ordered by insertion, matching the original's
	// Vec<u64>: the debugger's "ib" lists by index and "d n" deletes the
	// n-th entry, which only makes sense against an ordered collection.
	Breakpoints []uint64
	Pause       int
}

// HasBreakpoint reports whether addr has an active breakpoint.
func (p *Program) HasBreakpoint(addr uint64) bool {
	for _, bp := range p.Breakpoints {
		if bp == addr {
			return true
		}
	}
	return false
}

// NewProgram constructs an empty program image around an already-built
// register file and address space; the loader populates the rest.
func NewProgram(regs *regfile.File, space *memory.AddressSpace) *Program {
	return &Program{
		RegFile:      regs,
		AddressSpace: space,
		LibraryFuncs: make(map[uint64]string),
	}
}

func (p *Program) PC() uint64            { return p.ProgramCounter }
func (p *Program) Memory() cpu.AddressSpace { return p.AddressSpace }
func (p *Program) Registers() cpu.Registers { return p.RegFile }

// Warn reports a non-fatal diagnostic, matching the "[Warning]" banners
// the original printed in color (§7: fatal runtime errors "are reported
// as a single warning line identifying the address and cause").
func (p *Program) Warn(format string, args ...any) {
	warnLog.Printf("[Warning] "+format, args...)
}

// FuncAt returns the function record containing addr, if any.
func (p *Program) FuncAt(addr uint64) (FuncRecord, bool) {
	for _, fn := range p.Funcs {
		if addr >= fn.Start && addr < fn.Start+fn.Size {
			return fn, true
		}
	}
	return FuncRecord{}, false
}

// FuncByName looks up a function record by symbol name, for "b <func>"
// and "disass <func>".
func (p *Program) FuncByName(name string) (FuncRecord, bool) {
	for _, fn := range p.Funcs {
		if fn.Name == name {
			return fn, true
		}
	}
	return FuncRecord{}, false
}

// invokeLibraryFunc runs the simulated routine named by the simulated
// library table and reports the next program counter. ready is false
// only when a required register read stalled (relevant to the pipeline
// driver's Fetch hazard rule -- §4.6: "a library shim that reads a
// not-ready register stalls fetch, counts as a data hazard"); the
// sequential driver never observes ready == false since by the time it
// reaches a given PC every prior instruction has fully retired.
func (p *Program) invokeLibraryFunc(name string, addr uint64) (next uint64, ready bool) {
	switch name {
	case "puts":
		a0, ok := p.RegFile.Read(regfile.X10)
		if !ok {
			return 0, false
		}
		s, ok := p.readCString(a0)
		if !ok {
			p.Warn("cannot access memory at %#x", a0)
			return cpu.HLTAddr, true
		}
		fmt.Printf("puts(): %s\n", s)
		return addr + 4, true
	case "printf":
		p.Warn("printf() is not simulated, aborting")
		return cpu.HLTAddr, true
	default:
		p.Warn("unknown simulated library function %q at %#x", name, addr)
		return cpu.HLTAddr, true
	}
}

// readCString walks program memory one byte at a time until a NUL, the
// way string_from_memory does in the original's main.rs.
func (p *Program) readCString(addr uint64) (string, bool) {
	var buf []byte
	for {
		data, rem, ok := p.AddressSpace.Load(addr, 1, false)
		if !ok || rem != 0 {
			return "", false
		}
		if data[0] == 0 {
			break
		}
		buf = append(buf, data[0])
		addr++
	}
	return string(buf), true
}
