// Package memory implements the simulator's virtual address space: an
// ordered, non-overlapping list of virtual memory areas (VMAs), each with
// its own permission bits and backing byte buffer (§4.3).
package memory

// VMA is one virtual memory area: the half-open interval
// [Base, Base+Size) together with its permission bits and backing storage.
type VMA struct {
	Base       uint64
	Size       uint64
	Readable   bool
	Writable   bool
	Executable bool
	Bytes      []byte
}

// contains reports whether addr falls within this VMA.
func (v *VMA) contains(addr uint64) bool {
	return addr >= v.Base && addr < v.Base+v.Size
}

// upperBound returns the address one past the VMA's last byte.
func (v *VMA) upperBound() uint64 {
	return v.Base + v.Size
}
