package memory

import (
	"bytes"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDisplacementRange is returned when a rel32 displacement
	// cannot encode the distance to its target.
	ErrDisplacementRange = errors.New("target is out of rel32 range")

	// ErrVerifyFailed is returned by Patcher.Verify when memory
	// does not hold the expected bytes.
	ErrVerifyFailed = errors.New("memory does not match expected bytes")
)

// NewPatcher returns a Patcher that writes to space. If vm is non-nil,
// every write is wrapped by Unprotect and pointers are encoded using
// vm.PointerSize. Otherwise, pointers are native-sized.
func NewPatcher(space Space, vm VirtualMemory) *Patcher {
	size := nativePointerSize()
	if vm != nil {
		size = vm.PointerSize()
	}

	pm, err := PointerMakerForSize(size)
	if err != nil {
		pm = PointerMakerForX86_64()
	}

	return &Patcher{
		space: space,
		vm:    vm,
		ptrs:  pm,
	}
}

// Patcher writes code and data into a Space.
type Patcher struct {
	space Space
	vm    VirtualMemory
	ptrs  PointerMaker
}

// Pointers returns the PointerMaker used to encode pointers.
func (o *Patcher) Pointers() PointerMaker {
	return o.ptrs
}

func (o *Patcher) PatchOrExit(addr uintptr, data []byte) {
	err := o.Patch(addr, data)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to patch 0x%x - %w", addr, err))
	}
}

// Patch copies data to addr.
func (o *Patcher) Patch(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	dst, err := o.space.Bytes(addr, len(data))
	if err != nil {
		return err
	}

	return WithUnprotected(o.vm, addr, uintptr(len(data)), func() error {
		copy(dst, data)
		return nil
	})
}

// PatchPointer writes value as a pointer at addr.
func (o *Patcher) PatchPointer(addr uintptr, value uintptr) error {
	return o.Patch(addr, o.ptrs.FromUintptr(value).Bytes())
}

// Nop overwrites n bytes at addr with 0x90.
func (o *Patcher) Nop(addr uintptr, n int) error {
	return o.Patch(addr, bytes.Repeat([]byte{0x90}, n))
}

// Read returns a copy of the n bytes at addr.
func (o *Patcher) Read(addr uintptr, n int) ([]byte, error) {
	b, err := o.space.Bytes(addr, n)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), b...), nil
}

// ReadPointer reads a pointer at addr.
func (o *Patcher) ReadPointer(addr uintptr) (uintptr, error) {
	b, err := o.space.Bytes(addr, o.ptrs.Size())
	if err != nil {
		return 0, err
	}

	p, err := o.ptrs.Read(b)
	if err != nil {
		return 0, err
	}

	return p.Uintptr(), nil
}

// WriteOffsetValue writes the rel32 displacement at addr so that
// it refers to target. bytesAfter is the number of instruction bytes
// that follow the displacement, e.g. the size of an immediate operand.
func (o *Patcher) WriteOffsetValue(addr uintptr, target uintptr, bytesAfter int) error {
	rel, err := o.Displacement(addr, target, bytesAfter)
	if err != nil {
		return err
	}

	enc := make([]byte, 4)
	PointerMakerForX86_32().put(enc, uint64(uint32(rel)))

	return o.Patch(addr, enc)
}

// Displacement returns the rel32 value that makes a displacement at
// addr refer to target. In a 32-bit address space every distance is
// encodable and the result wraps.
func (o *Patcher) Displacement(addr uintptr, target uintptr, bytesAfter int) (int32, error) {
	next := addr + 4 + uintptr(bytesAfter)

	if o.ptrs.Size() <= 4 {
		return int32(uint32(target) - uint32(next)), nil
	}

	delta := int64(uint64(target) - uint64(next))
	if delta > math.MaxInt32 || delta < math.MinInt32 {
		return 0, fmt.Errorf("0x%x to 0x%x - %w", addr, target, ErrDisplacementRange)
	}

	return int32(delta), nil
}

// ReadOffsetValue decodes the rel32 displacement at addr and returns
// the address it refers to.
func (o *Patcher) ReadOffsetValue(addr uintptr, bytesAfter int) (uintptr, error) {
	b, err := o.space.Bytes(addr, 4)
	if err != nil {
		return 0, err
	}

	p, err := PointerMakerForX86_32().Read(b)
	if err != nil {
		return 0, err
	}

	rel := int32(uint32(p.Uint()))
	next := addr + 4 + uintptr(bytesAfter)

	return next + uintptr(int64(rel)), nil
}

// MemEquals returns true if the memory at addr holds expected.
func (o *Patcher) MemEquals(addr uintptr, expected []byte) bool {
	b, err := o.space.Bytes(addr, len(expected))
	if err != nil {
		return false
	}

	return bytes.Equal(b, expected)
}

// Verify returns an error wrapping ErrVerifyFailed if the memory
// at addr does not hold expected.
func (o *Patcher) Verify(addr uintptr, expected []byte) error {
	if !o.MemEquals(addr, expected) {
		return fmt.Errorf("0x%x - %w", addr, ErrVerifyFailed)
	}

	return nil
}

func (o *Patcher) VerifyOrExit(addr uintptr, expected []byte) {
	err := o.Verify(addr, expected)
	if err != nil {
		DefaultExitFn(err)
	}
}

// DynBase relocates addr, which is expressed relative to the preferred
// image base of a module, to where the module is actually loaded.
func DynBase(moduleBase uintptr, preferredBase uintptr, addr uintptr) uintptr {
	return addr - preferredBase + moduleBase
}
