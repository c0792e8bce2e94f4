//go:build !windows && !linux

package memory

// CurrentVirtualMemory returns the VirtualMemory of the calling process.
//
// This platform has no implementation: every method fails with
// ErrUnsupported.
func CurrentVirtualMemory() VirtualMemory {
	return unsupportedVM{}
}

type unsupportedVM struct{}

func (unsupportedVM) Query(uintptr) (Region, error) {
	return Region{}, ErrUnsupported
}

func (unsupportedVM) ReserveAndCommit(uintptr, uintptr, Protection) (uintptr, error) {
	return 0, ErrUnsupported
}

func (unsupportedVM) Protect(uintptr, uintptr, Protection) (Protection, error) {
	return ProtNone, ErrUnsupported
}

func (unsupportedVM) AllocationGranularity() uintptr {
	return 0x1000
}

func (unsupportedVM) PointerSize() int {
	return nativePointerSize()
}
