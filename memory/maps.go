package memory

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// mapping is one line of a /proc/<pid>/maps file.
type mapping struct {
	start uintptr
	end   uintptr
	prot  Protection
	path  string
}

// parseMaps parses the contents of a /proc/<pid>/maps file.
func parseMaps(r io.Reader) ([]mapping, error) {
	var mappings []mapping

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if len(fields) < 5 {
			return nil, fmt.Errorf("line %d has %d fields, expected at least 5",
				line, len(fields))
		}

		bounds := strings.SplitN(fields[0], "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("line %d has a malformed address range: %q",
				line, fields[0])
		}

		start, err := strconv.ParseUint(bounds[0], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d has a malformed start address - %w", line, err)
		}

		end, err := strconv.ParseUint(bounds[1], 16, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d has a malformed end address - %w", line, err)
		}

		m := mapping{
			start: uintptr(start),
			end:   uintptr(end),
		}

		perms := fields[1]
		if strings.HasPrefix(perms, "r") {
			m.prot |= ProtRead
		}
		if len(perms) > 1 && perms[1] == 'w' {
			m.prot |= ProtWrite
		}
		if len(perms) > 2 && perms[2] == 'x' {
			m.prot |= ProtExec
		}

		if len(fields) > 5 {
			m.path = strings.Join(fields[5:], " ")
		}

		mappings = append(mappings, m)
	}

	err := scanner.Err()
	if err != nil {
		return nil, err
	}

	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].start < mappings[j].start
	})

	return mappings, nil
}

// regionFromMappings returns the region containing addr. Gaps between
// mappings are reported as free regions bounded by [minAddr, maxAddr).
func regionFromMappings(mappings []mapping, addr uintptr, minAddr uintptr, maxAddr uintptr) (Region, error) {
	if addr < minAddr || addr >= maxAddr {
		return Region{}, fmt.Errorf("0x%x - %w", addr, ErrOutOfAddressSpace)
	}

	freeStart := minAddr
	for _, m := range mappings {
		if addr < m.start {
			return Region{
				Base:  freeStart,
				Size:  m.start - freeStart,
				State: RegionFree,
			}, nil
		}

		if addr < m.end {
			return Region{
				Base:       m.start,
				Size:       m.end - m.start,
				State:      RegionCommitted,
				Protection: m.prot,
			}, nil
		}

		if m.end > freeStart {
			freeStart = m.end
		}
	}

	return Region{
		Base:  freeStart,
		Size:  maxAddr - freeStart,
		State: RegionFree,
	}, nil
}
