package memory

import (
	"errors"
	"unsafe"
)

var (
	// ErrOutOfAddressSpace is returned by VirtualMemory.Query when
	// the address lies outside of the usable address space.
	ErrOutOfAddressSpace = errors.New("address is outside of the usable address space")

	// ErrUnsupported is returned by the VirtualMemory of platforms
	// that have no implementation.
	ErrUnsupported = errors.New("virtual memory services are not supported on this platform")
)

// RegionState describes whether a region of the address space
// is in use.
type RegionState int

const (
	RegionFree RegionState = iota
	RegionReserved
	RegionCommitted
)

func (o RegionState) String() string {
	switch o {
	case RegionFree:
		return "free"
	case RegionReserved:
		return "reserved"
	case RegionCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// Protection is a set of page access rights.
type Protection uint32

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExec

	ProtNone Protection = 0
	ProtRWX             = ProtRead | ProtWrite | ProtExec
)

// String returns the protection in "rwx" notation.
func (o Protection) String() string {
	b := []byte("---")
	if o&ProtRead != 0 {
		b[0] = 'r'
	}
	if o&ProtWrite != 0 {
		b[1] = 'w'
	}
	if o&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// Region describes a contiguous run of pages sharing the same state.
type Region struct {
	Base       uintptr
	Size       uintptr
	State      RegionState
	Protection Protection
}

// End returns the first address after the region.
func (o Region) End() uintptr {
	return o.Base + o.Size
}

// VirtualMemory is the set of operating system memory services used
// to place and patch code at runtime.
type VirtualMemory interface {
	// Query returns the region containing addr. It returns an error
	// wrapping ErrOutOfAddressSpace if addr cannot be queried because
	// it is outside of the usable address space.
	Query(addr uintptr) (Region, error)

	// ReserveAndCommit reserves and commits size bytes at exactly
	// addr, returning the address of the new memory.
	ReserveAndCommit(addr uintptr, size uintptr, prot Protection) (uintptr, error)

	// Protect changes the protection of [addr, addr+size) and
	// returns the previous protection.
	Protect(addr uintptr, size uintptr, prot Protection) (Protection, error)

	// AllocationGranularity returns the alignment and minimum size
	// of a reservation.
	AllocationGranularity() uintptr

	// PointerSize returns the size of a pointer in bytes.
	PointerSize() int
}

func nativePointerSize() int {
	return int(unsafe.Sizeof(uintptr(0)))
}

// userSpaceTop returns the first address above the canonical user
// half of a 64-bit address space, or the top of a 32-bit one.
func userSpaceTop() uintptr {
	top := uint64(1) << 47
	if nativePointerSize() < 8 {
		return ^uintptr(0)
	}

	return uintptr(top)
}
