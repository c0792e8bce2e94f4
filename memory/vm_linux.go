//go:build linux

package memory

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// Matches the default vm.mmap_min_addr.
	linuxMinAddr = 0x10000
)

// CurrentVirtualMemory returns the VirtualMemory of the calling process.
func CurrentVirtualMemory() VirtualMemory {
	return &linuxVM{
		pageSize: uintptr(os.Getpagesize()),
		minAddr:  linuxMinAddr,
		maxAddr:  userSpaceTop(),
	}
}

type linuxVM struct {
	pageSize uintptr
	minAddr  uintptr
	maxAddr  uintptr
}

func (o *linuxVM) Query(addr uintptr) (Region, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return Region{}, fmt.Errorf("failed to open process maps - %w", err)
	}
	defer f.Close()

	mappings, err := parseMaps(f)
	if err != nil {
		return Region{}, fmt.Errorf("failed to parse process maps - %w", err)
	}

	return regionFromMappings(mappings, addr, o.minAddr, o.maxAddr)
}

func (o *linuxVM) ReserveAndCommit(addr uintptr, size uintptr, prot Protection) (uintptr, error) {
	p, err := unix.MmapPtr(-1, 0, unsafe.Pointer(addr), size, toUnixProtection(prot),
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE)
	if err != nil {
		return 0, fmt.Errorf("mmap failed for 0x%x (%d bytes) - %w", addr, size, err)
	}

	// Kernels older than 4.17 treat MAP_FIXED_NOREPLACE as a hint.
	if uintptr(p) != addr {
		_ = unix.MunmapPtr(p, size)
		return 0, fmt.Errorf("mmap placed memory at 0x%x instead of 0x%x", uintptr(p), addr)
	}

	return addr, nil
}

func (o *linuxVM) Protect(addr uintptr, size uintptr, prot Protection) (Protection, error) {
	region, err := o.Query(addr)
	if err != nil {
		return ProtNone, err
	}

	pageStart := addr &^ (o.pageSize - 1)
	length := (addr + size - pageStart + o.pageSize - 1) &^ (o.pageSize - 1)

	err = unix.Mprotect(unsafe.Slice((*byte)(unsafe.Pointer(pageStart)), length), toUnixProtection(prot))
	if err != nil {
		return ProtNone, fmt.Errorf("mprotect failed for 0x%x (%d bytes) - %w", addr, size, err)
	}

	return region.Protection, nil
}

func (o *linuxVM) AllocationGranularity() uintptr {
	return o.pageSize
}

func (o *linuxVM) PointerSize() int {
	return nativePointerSize()
}

func toUnixProtection(prot Protection) int {
	flags := unix.PROT_NONE
	if prot&ProtRead != 0 {
		flags |= unix.PROT_READ
	}
	if prot&ProtWrite != 0 {
		flags |= unix.PROT_WRITE
	}
	if prot&ProtExec != 0 {
		flags |= unix.PROT_EXEC
	}
	return flags
}
