package trampoline

// Block is a region of reserved memory that requests are carved from.
type Block struct {
	Base     uintptr
	Capacity uintptr
	Used     uintptr
}

// End returns the first address after the block.
func (o Block) End() uintptr {
	return o.Base + o.Capacity
}

// carve takes size bytes aligned to align from the unused part of the
// block. It fails if the space does not fit or if any of it is out of
// reach of anchor.
func (o *Block) carve(anchor uintptr, size uintptr, align uintptr) (uintptr, bool) {
	addr := alignUp(o.Base+o.Used, align)
	end := addr + size
	if addr < o.Base || end < addr || end > o.End() {
		return 0, false
	}

	if !Reachable(addr, anchor) || !Reachable(end-1, anchor) {
		return 0, false
	}

	o.Used = end - o.Base

	return addr, true
}

func alignUp(v uintptr, align uintptr) uintptr {
	return (v + align - 1) &^ (align - 1)
}

func alignDown(v uintptr, align uintptr) uintptr {
	return v &^ (align - 1)
}
