package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_MapAndBytes(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{})

	require.NoError(t, sim.Map(0x400000, []byte{1, 2, 3, 4}, ProtRead))
	require.NoError(t, sim.Map(0x400004, []byte{5, 6}, ProtRead))

	b, err := sim.Bytes(0x400002, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4, 5, 6}, b)

	_, err = sim.Bytes(0x400002, 5)
	assert.True(t, errors.Is(err, ErrUnmapped))

	err = sim.Map(0x400001, []byte{0}, ProtRead)
	assert.Error(t, err, "overlapping map should fail")
}

func TestSimulated_BytesAliases(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{})
	require.NoError(t, sim.Map(0x400000, []byte{0, 0}, ProtRead))

	b, err := sim.Bytes(0x400000, 2)
	require.NoError(t, err)
	b[1] = 0xcc

	b, err = sim.Bytes(0x400001, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0xcc), b[0])
}

func TestSimulated_Query(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{
		MaxAddress: 0x100000,
	})
	require.NoError(t, sim.Map(0x40000, make([]byte, 0x1000), ProtRead|ProtExec))

	region, err := sim.Query(0x40800)
	require.NoError(t, err)
	assert.Equal(t, Region{
		Base:       0x40000,
		Size:       0x1000,
		State:      RegionCommitted,
		Protection: ProtRead | ProtExec,
	}, region)

	region, err = sim.Query(0x20000)
	require.NoError(t, err)
	assert.Equal(t, Region{Base: 0x10000, Size: 0x30000, State: RegionFree}, region)

	region, err = sim.Query(0x41000)
	require.NoError(t, err)
	assert.Equal(t, Region{Base: 0x41000, Size: 0xbf000, State: RegionFree}, region)

	_, err = sim.Query(0x100000)
	assert.True(t, errors.Is(err, ErrOutOfAddressSpace))

	_, err = sim.Query(0x1000)
	assert.True(t, errors.Is(err, ErrOutOfAddressSpace))
}

func TestSimulated_ReserveAndCommit(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{
		OptFailReserve: func(addr uintptr) bool {
			return addr == 0x60000
		},
	})

	_, err := sim.ReserveAndCommit(0x50001, 0x10000, ProtRWX)
	assert.Error(t, err, "unaligned reservation should fail")

	_, err = sim.ReserveAndCommit(0x60000, 0x10000, ProtRWX)
	assert.Error(t, err, "refused reservation should fail")

	addr, err := sim.ReserveAndCommit(0x50000, 0x10000, ProtRWX)
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x50000), addr)

	_, err = sim.ReserveAndCommit(0x50000, 0x10000, ProtRWX)
	assert.Error(t, err, "reserving committed memory should fail")

	region, err := sim.Query(0x5ffff)
	require.NoError(t, err)
	assert.Equal(t, RegionCommitted, region.State)
	assert.Equal(t, ProtRWX, region.Protection)
}

func TestSimulated_Protect(t *testing.T) {
	sim := NewSimulated(SimulatedConfig{})
	require.NoError(t, sim.Map(0x400000, make([]byte, 0x100), ProtRead|ProtExec))

	old, err := sim.Protect(0x400010, 4, ProtRWX)
	require.NoError(t, err)
	assert.Equal(t, ProtRead|ProtExec, old)

	region, err := sim.Query(0x400000)
	require.NoError(t, err)
	assert.Equal(t, ProtRWX, region.Protection)

	_, err = sim.Protect(0x500000, 4, ProtRWX)
	assert.True(t, errors.Is(err, ErrUnmapped))
}
