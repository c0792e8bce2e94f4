package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingVM struct {
	*Simulated
	protects []Protection
}

func (o *recordingVM) Protect(addr uintptr, size uintptr, prot Protection) (Protection, error) {
	o.protects = append(o.protects, prot)
	return o.Simulated.Protect(addr, size, prot)
}

func newTestPatcher(t *testing.T) (*Patcher, *recordingVM) {
	sim := NewSimulated(SimulatedConfig{})
	require.NoError(t, sim.Map(0x140001000, make([]byte, 0x100), ProtRead|ProtExec))

	vm := &recordingVM{Simulated: sim}

	return NewPatcher(sim, vm), vm
}

func TestPatcher_PatchRestoresProtection(t *testing.T) {
	patcher, vm := newTestPatcher(t)

	require.NoError(t, patcher.Patch(0x140001010, []byte{0xc3}))

	assert.Equal(t, []Protection{ProtRWX, ProtRead | ProtExec}, vm.protects)
	assert.True(t, patcher.MemEquals(0x140001010, []byte{0xc3}))

	region, err := vm.Query(0x140001010)
	require.NoError(t, err)
	assert.Equal(t, ProtRead|ProtExec, region.Protection)
}

func TestPatcher_Nop(t *testing.T) {
	patcher, _ := newTestPatcher(t)

	require.NoError(t, patcher.Nop(0x140001000, 3))
	require.NoError(t, patcher.Verify(0x140001000, []byte{0x90, 0x90, 0x90, 0x00}))

	err := patcher.Verify(0x140001000, []byte{0x00})
	assert.True(t, errors.Is(err, ErrVerifyFailed))
}

func TestPatcher_Pointer(t *testing.T) {
	patcher, _ := newTestPatcher(t)

	require.NoError(t, patcher.PatchPointer(0x140001020, 0x7ff612345678))

	b, err := patcher.Read(0x140001020, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0xf6, 0x7f, 0x00, 0x00}, b)

	p, err := patcher.ReadPointer(0x140001020)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x7ff612345678), p)
}

func TestPatcher_OffsetValue(t *testing.T) {
	patcher, _ := newTestPatcher(t)

	// cmp dword ptr [rip+disp32], imm8: one byte follows the displacement.
	require.NoError(t, patcher.WriteOffsetValue(0x140001002, 0x140000f00, 1))

	target, err := patcher.ReadOffsetValue(0x140001002, 1)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x140000f00), target)

	b, err := patcher.Read(0x140001002, 4)
	require.NoError(t, err)
	// 0x140000f00 - 0x140001007 = -0x107
	assert.Equal(t, []byte{0xf9, 0xfe, 0xff, 0xff}, b)
}

func TestPatcher_OffsetValueOutOfRange(t *testing.T) {
	patcher, _ := newTestPatcher(t)

	err := patcher.WriteOffsetValue(0x140001002, 0x7ff600000000, 0)
	assert.True(t, errors.Is(err, ErrDisplacementRange))
}

func TestPatcher_OffsetValueWrapsIn32BitSpace(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{
		MaxAddress:  0xffff0000,
		PointerSize: 4,
	})
	require.NoError(t, sim.Map(0x401000, make([]byte, 0x10), ProtRead|ProtExec))

	patcher := NewPatcher(sim, sim)

	require.NoError(t, patcher.WriteOffsetValue(0x401001, 0xf0000000, 0))

	target, err := patcher.ReadOffsetValue(0x401001, 0)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0xf0000000), target&0xffffffff)
}

func TestDynBase(t *testing.T) {
	assert.Equal(t, uintptr(0x7ff600401234), DynBase(0x7ff600000000, 0x140000000, 0x140401234))
}
