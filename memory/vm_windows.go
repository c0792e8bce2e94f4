//go:build windows

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const memFree = 0x10000

var procGetSystemInfo = windows.NewLazySystemDLL("kernel32.dll").NewProc("GetSystemInfo")

type systemInfo struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

// CurrentVirtualMemory returns the VirtualMemory of the calling process.
func CurrentVirtualMemory() VirtualMemory {
	var info systemInfo
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&info)))

	granularity := uintptr(info.AllocationGranularity)
	if granularity == 0 {
		granularity = 0x10000
	}

	return &windowsVM{
		granularity: granularity,
		minAddr:     info.MinimumApplicationAddress,
		maxAddr:     info.MaximumApplicationAddress,
	}
}

type windowsVM struct {
	granularity uintptr
	minAddr     uintptr
	maxAddr     uintptr
}

func (o *windowsVM) Query(addr uintptr) (Region, error) {
	if addr < o.minAddr || (o.maxAddr != 0 && addr > o.maxAddr) {
		return Region{}, fmt.Errorf("0x%x - %w", addr, ErrOutOfAddressSpace)
	}

	var info windows.MemoryBasicInformation
	err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info))
	if err != nil {
		return Region{}, fmt.Errorf("VirtualQuery failed for 0x%x - %w", addr, err)
	}

	region := Region{
		Base: info.BaseAddress,
		Size: info.RegionSize,
	}

	switch info.State {
	case memFree:
		region.State = RegionFree
	case windows.MEM_RESERVE:
		region.State = RegionReserved
	case windows.MEM_COMMIT:
		region.State = RegionCommitted
		region.Protection = fromWindowsProtection(info.Protect)
	default:
		return Region{}, fmt.Errorf("VirtualQuery returned unknown state 0x%x for 0x%x",
			info.State, addr)
	}

	return region, nil
}

func (o *windowsVM) ReserveAndCommit(addr uintptr, size uintptr, prot Protection) (uintptr, error) {
	p, err := windows.VirtualAlloc(addr, size,
		windows.MEM_COMMIT|windows.MEM_RESERVE, toWindowsProtection(prot))
	if err != nil {
		return 0, fmt.Errorf("VirtualAlloc failed for 0x%x (%d bytes) - %w", addr, size, err)
	}

	return p, nil
}

func (o *windowsVM) Protect(addr uintptr, size uintptr, prot Protection) (Protection, error) {
	var old uint32
	err := windows.VirtualProtect(addr, size, toWindowsProtection(prot), &old)
	if err != nil {
		return ProtNone, fmt.Errorf("VirtualProtect failed for 0x%x (%d bytes) - %w", addr, size, err)
	}

	return fromWindowsProtection(old), nil
}

func (o *windowsVM) AllocationGranularity() uintptr {
	return o.granularity
}

func (o *windowsVM) PointerSize() int {
	return nativePointerSize()
}

func toWindowsProtection(prot Protection) uint32 {
	switch prot & ProtRWX {
	case ProtNone:
		return windows.PAGE_NOACCESS
	case ProtRead:
		return windows.PAGE_READONLY
	case ProtRead | ProtWrite, ProtWrite:
		return windows.PAGE_READWRITE
	case ProtExec:
		return windows.PAGE_EXECUTE
	case ProtRead | ProtExec:
		return windows.PAGE_EXECUTE_READ
	default:
		return windows.PAGE_EXECUTE_READWRITE
	}
}

func fromWindowsProtection(protect uint32) Protection {
	switch protect &^ (windows.PAGE_GUARD | windows.PAGE_NOCACHE | windows.PAGE_WRITECOMBINE) {
	case windows.PAGE_READONLY:
		return ProtRead
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return ProtRead | ProtWrite
	case windows.PAGE_EXECUTE:
		return ProtExec
	case windows.PAGE_EXECUTE_READ:
		return ProtRead | ProtExec
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return ProtRWX
	default:
		return ProtNone
	}
}
