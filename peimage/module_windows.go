//go:build windows

package peimage

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// MainModule returns the base address of the executable that
// started the current process.
func MainModule() (uintptr, error) {
	var h windows.Handle
	err := windows.GetModuleHandleEx(windows.GET_MODULE_HANDLE_EX_FLAG_UNCHANGED_REFCOUNT, nil, &h)
	if err != nil {
		return 0, fmt.Errorf("failed to get main module handle - %w", err)
	}

	return uintptr(h), nil
}
