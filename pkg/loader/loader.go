// Package loader builds a runnable program image from an RV64I ELF
// executable: VMAs from loadable segments, a 1 MiB stack, the register
// presets that make `jalr x0, ra, 0` halt the simulator, and the
// simulated-library-function and function tables the debugger and the
// pipeline's library-call shim rely on (§6).
package loader

import (
	"bufio"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"sort"

	"rv64sim/pkg/cpu"
	"rv64sim/pkg/memory"
	"rv64sim/pkg/regfile"
	"rv64sim/pkg/sim"
)

const (
	// StackTop is the fixed top of the stack VMA; sp is initialized here.
	StackTop = 0x0400_0000
	// StackSize is the original's fixed 1 MiB stack allocation.
	StackSize = 1 << 20
	// RequiredStackAlignment is the only alignment attribute this loader accepts.
	RequiredStackAlignment = 16
)

// Load opens path as an RV64I ELF executable and returns a ready-to-run
// Program, or a fatal load error (§7, category 1: IO failure, wrong
// architecture, bad ELF). forwarding controls the register file's
// per-cycle forwarding slot, meaningful only to the pipeline driver.
func Load(path string, forwarding bool) (*sim.Program, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: cannot open %s: %w", path, err)
	}
	defer f.Close()

	debugw, closeDebug := newDebugWriter(path)
	defer closeDebug()

	debugw("checking for architecture...\nclass=%s machine=%s type=%s\n", f.Class, f.Machine, f.Type)
	if f.Class != elf.ELFCLASS64 || f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("loader: %s is not an RV64 image (class=%s machine=%s)", path, f.Class, f.Machine)
	}
	if f.Type != elf.ET_EXEC {
		return nil, fmt.Errorf("loader: %s is not a statically linked executable (type=%s)", path, f.Type)
	}
	if err := verifyStackAlignment(f, debugw); err != nil {
		return nil, err
	}

	debugw("\nreading program headers...\n")
	vmas, err := loadSegments(f, path, debugw)
	if err != nil {
		return nil, err
	}

	entry := f.Entry
	libraryFuncs := make(map[uint64]string)
	var funcs []sim.FuncRecord

	// Compressed-instruction support is incomplete (pkg/isa), which is
	// pervasive in libc startup code; start at main() when the symbol
	// table has it, same reasoning as the original loader.
	if syms, err := f.Symbols(); err == nil {
		for _, s := range syms {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Size == 0 || s.Name == "" {
				continue
			}
			funcs = append(funcs, sim.FuncRecord{Start: s.Value, Size: s.Size, Name: s.Name})
			switch s.Name {
			case "main":
				entry = s.Value
			case "puts", "printf":
				libraryFuncs[s.Value] = s.Name
			}
		}
	}
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Start < funcs[j].Start })

	debugw("\nparsed funcs (start, size, name):\n")
	for _, fn := range funcs {
		debugw("  %#x %d %s\n", fn.Start, fn.Size, fn.Name)
	}

	stackBase := uint64(StackTop - StackSize)
	vmas = append(vmas, memory.VMA{
		Base:       stackBase,
		Size:       StackSize,
		Readable:   true,
		Writable:   true,
		Executable: false,
		Bytes:      make([]byte, StackSize),
	})

	regs := regfile.New(forwarding)
	regs.Write(regfile.X2, StackTop)
	regs.Write(regfile.X1, cpu.HLTAddr)

	prog := sim.NewProgram(regs, memory.New(vmas))
	prog.EntryPoint = entry
	prog.ProgramCounter = entry
	prog.LibraryFuncs = libraryFuncs
	prog.Funcs = funcs

	debugw("\nload summary:\n")
	debugw("entry point: %#x\n", entry)
	for i, v := range vmas {
		debugw("%d: %#x ~ %#x readable=%v writable=%v executable=%v\n",
			i, v.Base, v.Base+v.Size, v.Readable, v.Writable, v.Executable)
	}

	return prog, nil
}

// loadSegments builds one VMA per PT_LOAD program header, zero-filling the
// bss tail (memsz beyond filesz) the way a real loader would.
func loadSegments(f *elf.File, path string, debugw func(string, ...any)) ([]memory.VMA, error) {
	var vmas []memory.VMA
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, p.Memsz)
		if _, err := io.ReadFull(p.Open(), data[:p.Filesz]); err != nil {
			return nil, fmt.Errorf("loader: reading segment at %#x: %w", p.Vaddr, err)
		}
		vmas = append(vmas, memory.VMA{
			Base:       p.Vaddr,
			Size:       p.Memsz,
			Readable:   p.Flags&elf.PF_R != 0,
			Writable:   p.Flags&elf.PF_W != 0,
			Executable: p.Flags&elf.PF_X != 0,
			Bytes:      data,
		})
		debugw("LOAD vaddr=%#x filesz=%#x memsz=%#x flags=%s\n", p.Vaddr, p.Filesz, p.Memsz, p.Flags)
	}
	if len(vmas) == 0 {
		return nil, fmt.Errorf("loader: %s has no loadable segments", path)
	}
	return vmas, nil
}

// newDebugWriter opens path+".d" and returns a printf-style writer plus a
// close function. The summary is best-effort and informational only
// (§6); a failure to create it must not abort the load.
func newDebugWriter(path string) (write func(format string, args ...any), closeFn func()) {
	fp, err := os.Create(path + ".d")
	if err != nil {
		return func(string, ...any) {}, func() {}
	}
	w := bufio.NewWriter(fp)
	return func(format string, args ...any) {
			fmt.Fprintf(w, format, args...)
		}, func() {
			w.Flush()
			fp.Close()
		}
}
