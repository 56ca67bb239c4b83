package memory

// AddressSpace is the ordered, fixed set of VMAs that make up one running
// program's view of memory. Loads and stores are bounds- and
// permission-checked against it (§4.3).
type AddressSpace struct {
	vmas []VMA
}

// New constructs an address space from an already-built VMA list. The
// loader is responsible for ensuring the VMAs do not overlap.
func New(vmas []VMA) *AddressSpace {
	return &AddressSpace{vmas: vmas}
}

// VMAs returns the underlying VMA list, for the debugger and loader summary.
func (as *AddressSpace) VMAs() []VMA {
	return as.vmas
}

func (as *AddressSpace) find(addr uint64) *VMA {
	for i := range as.vmas {
		if as.vmas[i].contains(addr) {
			return &as.vmas[i]
		}
	}
	return nil
}

// Load reads up to length bytes starting at addr. It returns the bytes
// actually available in the containing VMA and the number of bytes that
// fall outside that VMA's upper bound ("remaining"); a non-zero remaining
// means the access crossed a VMA boundary and the core must treat it as a
// fault (§4.3). ok is false when no VMA contains addr, or when the access
// fails the permission check (readable, or executable when isFetch).
func (as *AddressSpace) Load(addr uint64, length int, isFetch bool) (data []byte, remaining int, ok bool) {
	vma := as.find(addr)
	if vma == nil {
		return nil, 0, false
	}
	if !vma.Readable && !(isFetch && vma.Executable) {
		return nil, 0, false
	}
	end := vma.upperBound()
	want := addr + uint64(length)
	if want < end {
		end = want
	}
	start := addr - vma.Base
	bytes := vma.Bytes[start : end-vma.Base]
	remaining = length - len(bytes)
	return bytes, remaining, true
}

// Store writes data across one or more VMAs starting at addr. It returns
// false as soon as a VMA is missing or not writable for any byte of the
// range (§4.3).
func (as *AddressSpace) Store(addr uint64, data []byte) bool {
	cur := 0
	for cur < len(data) {
		vma := as.find(addr + uint64(cur))
		if vma == nil || !vma.Writable {
			return false
		}
		end := vma.upperBound()
		want := addr + uint64(len(data))
		if want < end {
			end = want
		}
		start := addr + uint64(cur) - vma.Base
		n := copy(vma.Bytes[start:end-vma.Base], data[cur:])
		cur += n
	}
	return true
}
