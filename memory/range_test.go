package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRange_Contains(t *testing.T) {
	r := Range{Start: 0x1000, End: 0x2000}

	assert.True(t, r.Contains(0x1000, 0x1000))
	assert.True(t, r.Contains(0x1ff0, 0x10))
	assert.False(t, r.Contains(0x1ff0, 0x11))
	assert.False(t, r.Contains(0xfff, 1))
	assert.False(t, r.Contains(0x2000, 0))
	assert.Equal(t, uintptr(0x1000), r.Len())
	assert.Equal(t, "[0x1000, 0x2000)", r.String())
}

func TestAppendMerged(t *testing.T) {
	var ranges []Range
	ranges = AppendMerged(ranges, Range{Start: 0x1000, End: 0x2000})
	ranges = AppendMerged(ranges, Range{Start: 0x2000, End: 0x3000})
	ranges = AppendMerged(ranges, Range{Start: 0x4000, End: 0x5000})

	assert.Equal(t, []Range{
		{Start: 0x1000, End: 0x3000},
		{Start: 0x4000, End: 0x5000},
	}, ranges)

	r, found := FindRange(ranges, 0x2ffc, 4)
	assert.True(t, found)
	assert.Equal(t, Range{Start: 0x1000, End: 0x3000}, r)

	_, found = FindRange(ranges, 0x2ffc, 8)
	assert.False(t, found)
}
