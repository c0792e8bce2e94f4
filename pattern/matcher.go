package pattern

// shiftTable is the bad-character table of a pattern. For each byte
// value it holds the highest pattern index at which that value can
// match. Every entry is at least the index of the last inexact
// position, since any byte may match there.
type shiftTable [256]int

func newShiftTable(p Pattern) *shiftTable {
	lastInexact := -1
	for i := len(p.mask) - 1; i >= 0; i-- {
		if p.mask[i] != 0xFF {
			lastInexact = i
			break
		}
	}

	var table shiftTable
	for i := range table {
		table[i] = lastInexact
	}

	for i, b := range p.bytes {
		if p.mask[i] == 0xFF && table[b] < i {
			table[b] = i
		}
	}

	return &table
}

// scan searches data, which starts at base, right to left for p.
// onMatch is called with the address of every match in increasing
// order. scan stops and returns true as soon as onMatch returns true.
func scan(p Pattern, table *shiftTable, data []byte, base uintptr, onMatch func(addr uintptr) bool) bool {
	n := len(p.bytes)
	if n == 0 {
		return false
	}

	last := len(data) - n
	for i := 0; i <= last; {
		j := n - 1
		for j >= 0 && p.bytes[j] == data[i+j]&p.mask[j] {
			j--
		}

		if j < 0 {
			if onMatch(base + uintptr(i)) {
				return true
			}

			i++
			continue
		}

		shift := j - table[data[i+j]]
		if shift < 1 {
			shift = 1
		}

		i += shift
	}

	return false
}
