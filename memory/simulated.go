package memory

import (
	"fmt"
	"sort"
	"sync"
)

// SimulatedConfig configures a Simulated address space.
type SimulatedConfig struct {
	// MinAddress is the lowest usable address. Defaults to 0x10000.
	MinAddress uintptr

	// MaxAddress is the first unusable address at the top of the
	// address space. Defaults to 1 << 47 on 64-bit hosts.
	MaxAddress uintptr

	// Granularity is the allocation granularity. Defaults to 0x10000.
	Granularity uintptr

	// PointerSize defaults to 8.
	PointerSize int

	// OptFailReserve, when non-nil, is called before every
	// reservation. A reservation fails if it returns true.
	OptFailReserve func(addr uintptr) bool

	// OptFailQuery, when non-nil, is called before every query.
	// A non-nil return value is returned by Query.
	OptFailQuery func(addr uintptr) error
}

// NewSimulated creates a new, empty Simulated address space.
func NewSimulated(config SimulatedConfig) *Simulated {
	if config.MinAddress == 0 {
		config.MinAddress = 0x10000
	}

	if config.MaxAddress == 0 {
		config.MaxAddress = userSpaceTop()
	}

	if config.Granularity == 0 {
		config.Granularity = 0x10000
	}

	if config.PointerSize == 0 {
		config.PointerSize = 8
	}

	return &Simulated{
		config: config,
	}
}

// Simulated is an address space that lives entirely in Go memory.
// It implements both Space and VirtualMemory, which makes it possible
// to scan a module image loaded from a file and to exercise code
// placement without touching the real process.
//
// Mapping a chunk that touches an existing chunk merges the two into
// one contiguous buffer. Slices previously returned by Bytes for the
// merged chunks no longer alias the address space after that.
type Simulated struct {
	config SimulatedConfig
	mu     sync.Mutex
	chunks []*simChunk
}

type simChunk struct {
	base uintptr
	data []byte
	prot Protection
}

func (o *simChunk) end() uintptr {
	return o.base + uintptr(len(o.data))
}

// Map copies data into the address space at base with the given
// protection. The range must not overlap memory that is already
// mapped.
func (o *Simulated) Map(base uintptr, data []byte, prot Protection) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.mapLocked(base, append([]byte(nil), data...), prot)
}

func (o *Simulated) mapLocked(base uintptr, data []byte, prot Protection) error {
	if len(data) == 0 {
		return fmt.Errorf("cannot map zero bytes at 0x%x", base)
	}

	end := base + uintptr(len(data))
	if end < base || base < o.config.MinAddress || end > o.config.MaxAddress {
		return fmt.Errorf("mapping [0x%x, 0x%x) - %w", base, end, ErrOutOfAddressSpace)
	}

	for _, c := range o.chunks {
		if base < c.end() && c.base < end {
			return fmt.Errorf("mapping [0x%x, 0x%x) overlaps [0x%x, 0x%x)",
				base, end, c.base, c.end())
		}
	}

	chunk := &simChunk{
		base: base,
		data: data,
		prot: prot,
	}

	// Same-protection neighbours are merged so that Bytes can
	// return a single slice spanning them.
	kept := o.chunks[:0]
	for _, c := range o.chunks {
		switch {
		case c.prot == prot && c.end() == chunk.base:
			chunk.data = append(append([]byte(nil), c.data...), chunk.data...)
			chunk.base = c.base
		case c.prot == prot && chunk.end() == c.base:
			chunk.data = append(chunk.data, c.data...)
		default:
			kept = append(kept, c)
		}
	}

	o.chunks = append(kept, chunk)

	sort.Slice(o.chunks, func(i, j int) bool {
		return o.chunks[i].base < o.chunks[j].base
	})

	return nil
}

func (o *Simulated) Bytes(addr uintptr, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid length: %d", n)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, c := range o.chunks {
		if addr >= c.base && addr < c.end() {
			off := addr - c.base
			if uintptr(n) > uintptr(len(c.data))-off {
				break
			}

			return c.data[off : off+uintptr(n) : off+uintptr(n)], nil
		}
	}

	return nil, fmt.Errorf("[0x%x, 0x%x) - %w", addr, addr+uintptr(n), ErrUnmapped)
}

func (o *Simulated) Query(addr uintptr) (Region, error) {
	if o.config.OptFailQuery != nil {
		err := o.config.OptFailQuery(addr)
		if err != nil {
			return Region{}, err
		}
	}

	if addr < o.config.MinAddress || addr >= o.config.MaxAddress {
		return Region{}, fmt.Errorf("0x%x - %w", addr, ErrOutOfAddressSpace)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	freeStart := o.config.MinAddress
	for _, c := range o.chunks {
		if addr < c.base {
			return Region{
				Base:  freeStart,
				Size:  c.base - freeStart,
				State: RegionFree,
			}, nil
		}

		if addr < c.end() {
			return Region{
				Base:       c.base,
				Size:       uintptr(len(c.data)),
				State:      RegionCommitted,
				Protection: c.prot,
			}, nil
		}

		freeStart = c.end()
	}

	return Region{
		Base:  freeStart,
		Size:  o.config.MaxAddress - freeStart,
		State: RegionFree,
	}, nil
}

func (o *Simulated) ReserveAndCommit(addr uintptr, size uintptr, prot Protection) (uintptr, error) {
	if addr%o.config.Granularity != 0 {
		return 0, fmt.Errorf("address 0x%x is not aligned to 0x%x", addr, o.config.Granularity)
	}

	if o.config.OptFailReserve != nil && o.config.OptFailReserve(addr) {
		return 0, fmt.Errorf("reservation at 0x%x was refused", addr)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	err := o.mapLocked(addr, make([]byte, size), prot)
	if err != nil {
		return 0, fmt.Errorf("failed to reserve 0x%x bytes at 0x%x - %w", size, addr, err)
	}

	return addr, nil
}

// Protect changes the protection of the whole chunk that contains
// addr and returns its previous protection.
func (o *Simulated) Protect(addr uintptr, size uintptr, prot Protection) (Protection, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, c := range o.chunks {
		if addr >= c.base && addr < c.end() {
			if size > c.end()-addr {
				return ProtNone, fmt.Errorf("[0x%x, 0x%x) spans more than one mapping",
					addr, addr+size)
			}

			old := c.prot
			c.prot = prot
			return old, nil
		}
	}

	return ProtNone, fmt.Errorf("0x%x - %w", addr, ErrUnmapped)
}

func (o *Simulated) AllocationGranularity() uintptr {
	return o.config.Granularity
}

func (o *Simulated) PointerSize() int {
	return o.config.PointerSize
}
