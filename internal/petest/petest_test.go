package petest

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/stephen-fox/sigkit/bstruct"
)

func TestHeaderSizes(t *testing.T) {
	tests := []struct {
		name string
		s    interface{}
		size int
	}{
		{name: "file header", s: fileHeader{}, size: fileHeaderSize},
		{name: "optional header", s: optionalHeader64{}, size: optHeader64Size},
		{name: "section header", s: sectionHeader{}, size: sectionEntrySize},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b, err := bstruct.StructToBytes(test.s, binary.LittleEndian, nil)
			require.NoError(t, err)
			assert.Len(t, b, test.size)
		})
	}
}

func TestBuild_Layout(t *testing.T) {
	file := Build(0x140000000, []Section{
		{Name: ".text", VirtualAddress: 0x1000, Data: []byte{0xc3}},
	})

	require.Len(t, file, 0x400)
	assert.Equal(t, "PE\x00\x00", string(file[peOffset:peOffset+4]))

	oh := file[peOffset+4+fileHeaderSize:]
	assert.Equal(t, uint64(0x140000000), binary.LittleEndian.Uint64(oh[24:]))
	assert.Equal(t, uint32(0x2000), binary.LittleEndian.Uint32(oh[56:]))

	entry := oh[optHeader64Size:]
	assert.Equal(t, ".text\x00\x00\x00", string(entry[:8]))
	assert.Equal(t, uint32(0x200), binary.LittleEndian.Uint32(entry[20:]))
	assert.Equal(t, byte(0xc3), file[0x200])

	mapped := Image(0x140000000, []Section{
		{Name: ".text", VirtualAddress: 0x1000, Data: []byte{0xc3}},
	})
	require.Len(t, mapped, 0x2000)
	assert.Equal(t, byte(0xc3), mapped[0x1000])
}
