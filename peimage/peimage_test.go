package peimage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/stephen-fox/sigkit/internal/petest"
	"gitlab.com/stephen-fox/sigkit/memory"
)

const testImageBase = 0x140000000

func testSections() []petest.Section {
	return []petest.Section{
		{
			Name:            ".text",
			VirtualAddress:  0x1000,
			VirtualSize:     0x1000,
			Characteristics: ScnCntCode | ScnMemExecute | ScnMemRead,
			Data:            []byte{0x48, 0x8b, 0x05, 0x10, 0x20, 0x30, 0x40, 0xe8},
		},
		{
			Name:            ".rdata",
			VirtualAddress:  0x2000,
			VirtualSize:     0x800,
			Characteristics: ScnCntInitializedData | ScnMemRead,
			Data:            []byte("hello"),
		},
		{
			Name:            ".data",
			VirtualAddress:  0x3000,
			VirtualSize:     0x100,
			Characteristics: ScnCntInitializedData | ScnMemRead | ScnMemWrite,
			Data:            []byte{1, 2, 3, 4},
		},
		{
			Name:            ".text",
			VirtualAddress:  0x4000,
			VirtualSize:     0x200,
			Characteristics: ScnCntCode | ScnMemExecute | ScnMemRead,
			Data:            []byte{0xc3},
		},
	}
}

func openTestImage(t *testing.T) *Image {
	sim := memory.NewSimulated(memory.SimulatedConfig{})
	require.NoError(t, sim.Map(testImageBase, petest.Image(testImageBase, testSections()), memory.ProtRead))

	image, err := Open(sim, testImageBase)
	require.NoError(t, err)

	return image
}

func TestOpen(t *testing.T) {
	image := openTestImage(t)

	assert.Equal(t, uintptr(testImageBase), image.Base)
	assert.Equal(t, uint64(testImageBase), image.PreferredBase)
	assert.Equal(t, 8, image.PointerSize)
	assert.Equal(t, uint32(0x5000), image.SizeOfImage)
	require.Len(t, image.Sections, 4)
	assert.Equal(t, ".rdata", image.Sections[1].Name)
	assert.Equal(t, uint32(0x800), image.Sections[1].VirtualSize)
}

func TestImage_ReadableSegmentsMergesAdjacent(t *testing.T) {
	image := openTestImage(t)

	assert.Equal(t, []memory.Range{
		{Start: testImageBase + 0x1000, End: testImageBase + 0x2800},
		{Start: testImageBase + 0x3000, End: testImageBase + 0x3100},
		{Start: testImageBase + 0x4000, End: testImageBase + 0x4200},
	}, image.ReadableSegments())
}

func TestImage_CodeSegments(t *testing.T) {
	image := openTestImage(t)

	assert.Equal(t, []memory.Range{
		{Start: testImageBase + 0x1000, End: testImageBase + 0x2000},
		{Start: testImageBase + 0x4000, End: testImageBase + 0x4200},
	}, image.CodeSegments())
}

func TestImage_SegmentsWithFlagOnlyMergesMatchingSections(t *testing.T) {
	image := openTestImage(t)

	// .rdata sits between .text and .data, so the two writable-or-code
	// ranges must not be merged across it.
	assert.Equal(t, []memory.Range{
		{Start: testImageBase + 0x1000, End: testImageBase + 0x2000},
		{Start: testImageBase + 0x3000, End: testImageBase + 0x3100},
		{Start: testImageBase + 0x4000, End: testImageBase + 0x4200},
	}, image.SegmentsWithFlag(ScnCntCode|ScnMemWrite))
}

func TestImage_SectionByName(t *testing.T) {
	image := openTestImage(t)

	ranges, found := image.SectionByName(".text")
	assert.True(t, found)
	assert.Equal(t, []memory.Range{
		{Start: testImageBase + 0x1000, End: testImageBase + 0x2000},
		{Start: testImageBase + 0x4000, End: testImageBase + 0x4200},
	}, ranges)

	ranges, found = image.SectionByName(".pdata")
	assert.False(t, found)
	assert.Empty(t, ranges)
}

func TestOpen_NotAnImage(t *testing.T) {
	sim := memory.NewSimulated(memory.SimulatedConfig{})
	require.NoError(t, sim.Map(0x400000, make([]byte, 0x1000), memory.ProtRead))

	_, err := Open(sim, 0x400000)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "test.exe")
	require.NoError(t, os.WriteFile(filePath, petest.Build(testImageBase, testSections()), 0o600))

	sim := memory.NewSimulated(memory.SimulatedConfig{})

	image, err := LoadFile(filePath, sim)
	require.NoError(t, err)
	assert.Equal(t, uintptr(testImageBase), image.Base)

	b, err := sim.Bytes(testImageBase+0x1000, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x8b, 0x05, 0x10, 0x20, 0x30, 0x40, 0xe8}, b)

	b, err = sim.Bytes(testImageBase+0x2000, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), b)

	reopened, err := Open(sim, image.Base)
	require.NoError(t, err)
	assert.Equal(t, image.Sections, reopened.Sections)
}
