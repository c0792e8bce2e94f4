//go:build !windows

package peimage

import (
	"fmt"

	"gitlab.com/stephen-fox/sigkit/memory"
)

// MainModule returns the base address of the executable that
// started the current process.
//
// Only Windows executables are Portable Executable images, so this
// always fails on other platforms.
func MainModule() (uintptr, error) {
	return 0, fmt.Errorf("main module lookup - %w", memory.ErrUnsupported)
}
