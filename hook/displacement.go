package hook

import (
	"fmt"

	"gitlab.com/stephen-fox/sigkit/trampoline"
)

func (o *Installer) WriteMemDisplacementOrExit(addr uintptr, target uintptr, bytesAfter int) {
	err := o.WriteMemDisplacement(addr, target, bytesAfter)
	if err != nil {
		DefaultExitFn(err)
	}
}

// WriteMemDisplacement points the memory operand whose displacement is
// at addr to target. In a 64-bit address space the operand is
// RIP-relative and bytesAfter is the number of instruction bytes that
// follow the displacement. In a 32-bit address space the operand is
// an absolute address and bytesAfter is ignored.
func (o *Installer) WriteMemDisplacement(addr uintptr, target uintptr, bytesAfter int) error {
	if o.flat() {
		return o.patcher.PatchPointer(addr, target)
	}

	return o.patcher.WriteOffsetValue(addr, target, bytesAfter)
}

// ReadMemDisplacement returns the address referred to by the memory
// operand whose displacement is at addr.
func (o *Installer) ReadMemDisplacement(addr uintptr, bytesAfter int) (uintptr, error) {
	if o.flat() {
		return o.patcher.ReadPointer(addr)
	}

	return o.patcher.ReadOffsetValue(addr, bytesAfter)
}

func (o *Installer) InterceptMemDisplacementOrExit(addr uintptr, target uintptr, bytesAfter int) uintptr {
	old, err := o.InterceptMemDisplacement(addr, target, bytesAfter)
	if err != nil {
		DefaultExitFn(err)
	}
	return old
}

// InterceptMemDisplacement points the memory operand at addr to target
// and returns the address it referred to before.
func (o *Installer) InterceptMemDisplacement(addr uintptr, target uintptr, bytesAfter int) (uintptr, error) {
	old, err := o.ReadMemDisplacement(addr, bytesAfter)
	if err != nil {
		return 0, err
	}

	err = o.WriteMemDisplacement(addr, target, bytesAfter)
	if err != nil {
		return 0, err
	}

	return old, nil
}

func (o *Installer) WritePointerDisplacementOrExit(addr uintptr, value uintptr, bytesAfter int) {
	err := o.WritePointerDisplacement(addr, value, bytesAfter)
	if err != nil {
		DefaultExitFn(err)
	}
}

// WritePointerDisplacement makes the memory operand at addr load value,
// for example the target of a "call qword ptr [rip+disp]". value is
// stored in a pointer slot within reach of the instruction and the
// operand is pointed at the slot.
//
// It fails with trampoline.ErrFlatAddressSpace in a 32-bit address
// space, where WriteMemDisplacement can refer to any slot directly.
func (o *Installer) WritePointerDisplacement(addr uintptr, value uintptr, bytesAfter int) error {
	if o.flat() {
		return fmt.Errorf("failed to retarget pointer operand at 0x%x - %w",
			addr, trampoline.ErrFlatAddressSpace)
	}

	next := addr + 4 + uintptr(bytesAfter)

	slot, err := o.config.OptTrampolines.Pointer(next, value)
	if err != nil {
		return fmt.Errorf("failed to retarget pointer operand at 0x%x - %w", addr, err)
	}

	err = o.WriteMemDisplacement(addr, slot, bytesAfter)
	if err != nil {
		return err
	}

	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf("retargeted pointer operand at 0x%x -> 0x%x via slot 0x%x",
			addr, value, slot)
	}

	return nil
}

func (o *Installer) flat() bool {
	return o.patcher.Pointers().Size() <= 4
}
