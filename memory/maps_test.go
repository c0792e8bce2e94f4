package memory

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleMaps = `55c8ded79000-55c8ded7e000 r-xp 00002000 fe:02 2360849                    /usr/bin/cat
55c8ded77000-55c8ded79000 r--p 00000000 fe:02 2360849                    /usr/bin/cat
55c8df8a1000-55c8df8c2000 rw-p 00000000 00:00 0                          [heap]
7ffd1e5c2000-7ffd1e5e3000 rw-p 00000000 00:00 0                          [stack]
`

func TestParseMaps(t *testing.T) {
	mappings, err := parseMaps(strings.NewReader(exampleMaps))
	require.NoError(t, err)
	require.Len(t, mappings, 4)

	assert.Equal(t, uintptr(0x55c8ded77000), mappings[0].start)
	assert.Equal(t, ProtRead, mappings[0].prot)
	assert.Equal(t, ProtRead|ProtExec, mappings[1].prot)
	assert.Equal(t, "/usr/bin/cat", mappings[1].path)
	assert.Equal(t, "[heap]", mappings[2].path)
}

func TestParseMaps_Malformed(t *testing.T) {
	_, err := parseMaps(strings.NewReader("zzzz-1000 r-xp 0 0 0\n"))
	assert.Error(t, err)

	_, err = parseMaps(strings.NewReader("1000 r-xp\n"))
	assert.Error(t, err)
}

func TestRegionFromMappings(t *testing.T) {
	mappings, err := parseMaps(strings.NewReader(exampleMaps))
	require.NoError(t, err)

	const minAddr = 0x10000
	const maxAddr = uintptr(1) << 47

	region, err := regionFromMappings(mappings, 0x55c8ded7a000, minAddr, maxAddr)
	require.NoError(t, err)
	assert.Equal(t, RegionCommitted, region.State)
	assert.Equal(t, uintptr(0x55c8ded79000), region.Base)
	assert.Equal(t, ProtRead|ProtExec, region.Protection)

	region, err = regionFromMappings(mappings, 0x55c8ded7e000, minAddr, maxAddr)
	require.NoError(t, err)
	assert.Equal(t, RegionFree, region.State)
	assert.Equal(t, uintptr(0x55c8ded7e000), region.Base)
	assert.Equal(t, uintptr(0x55c8df8a1000), region.End())

	region, err = regionFromMappings(mappings, 0x20000, minAddr, maxAddr)
	require.NoError(t, err)
	assert.Equal(t, RegionFree, region.State)
	assert.Equal(t, uintptr(minAddr), region.Base)

	region, err = regionFromMappings(mappings, 0x7fff00000000, minAddr, maxAddr)
	require.NoError(t, err)
	assert.Equal(t, RegionFree, region.State)
	assert.Equal(t, maxAddr, region.End())

	_, err = regionFromMappings(mappings, maxAddr, minAddr, maxAddr)
	assert.True(t, errors.Is(err, ErrOutOfAddressSpace))
}
