package memory

import "fmt"

// Range is a half-open address range: [Start, End).
type Range struct {
	Start uintptr
	End   uintptr
}

// Len returns the number of bytes in the range.
func (o Range) Len() uintptr {
	if o.End <= o.Start {
		return 0
	}

	return o.End - o.Start
}

// Contains returns true if the n bytes starting at addr lie
// entirely within the range.
func (o Range) Contains(addr uintptr, n uintptr) bool {
	if addr < o.Start || addr >= o.End {
		return false
	}

	return n <= o.End-addr
}

func (o Range) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", o.Start, o.End)
}

// AppendMerged appends r to ranges. If the last range in ranges
// ends exactly where r starts, the last range is extended instead.
//
// Physically adjacent sections are merged this way because nothing
// stops a pattern from crossing the boundary between them.
func AppendMerged(ranges []Range, r Range) []Range {
	if n := len(ranges); n > 0 && ranges[n-1].End == r.Start {
		ranges[n-1].End = r.End
		return ranges
	}

	return append(ranges, r)
}

// FindRange returns the range in ranges that fully contains
// the n bytes starting at addr.
func FindRange(ranges []Range, addr uintptr, n uintptr) (Range, bool) {
	for _, r := range ranges {
		if r.Contains(addr, n) {
			return r, true
		}
	}

	return Range{}, false
}
