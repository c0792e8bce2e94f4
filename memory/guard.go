package memory

import "fmt"

// Unprotect makes [addr, addr+size) readable, writable and executable.
// The returned function restores the protection that was in place
// before the call. It must be called exactly once.
func Unprotect(vm VirtualMemory, addr uintptr, size uintptr) (func() error, error) {
	old, err := vm.Protect(addr, size, ProtRWX)
	if err != nil {
		return nil, fmt.Errorf("failed to unprotect [0x%x, 0x%x) - %w", addr, addr+size, err)
	}

	return func() error {
		_, err := vm.Protect(addr, size, old)
		if err != nil {
			return fmt.Errorf("failed to restore %s protection of [0x%x, 0x%x) - %w",
				old, addr, addr+size, err)
		}

		return nil
	}, nil
}

// WithUnprotected calls fn while [addr, addr+size) is writable.
// A nil vm means the memory is already writable.
func WithUnprotected(vm VirtualMemory, addr uintptr, size uintptr, fn func() error) error {
	if vm == nil {
		return fn()
	}

	restore, err := Unprotect(vm, addr, size)
	if err != nil {
		return err
	}

	err = fn()

	restoreErr := restore()
	if err != nil {
		return err
	}

	return restoreErr
}
