package trampoline

import (
	"errors"
	"fmt"
	"log"

	"gitlab.com/stephen-fox/sigkit/memory"
)

var (
	// ErrNoReachableSpace is returned when no free memory within
	// rel32 reach of an anchor could be reserved.
	ErrNoReachableSpace = errors.New("no free memory within reach of anchor")

	// ErrFlatAddressSpace is returned for requests that have no
	// meaning in a 32-bit address space.
	ErrFlatAddressSpace = errors.New("not needed in a 32-bit address space")
)

// Config configures a Registry.
type Config struct {
	// VM provides the memory services used to find and reserve
	// blocks.
	VM memory.VirtualMemory

	// Space is used to write stubs and pointers into blocks.
	Space memory.Space

	// OptLogger logs block reservations if specified.
	OptLogger *log.Logger
}

// New creates a new, empty *Registry.
func New(config Config) (*Registry, error) {
	if config.VM == nil {
		return nil, fmt.Errorf("virtual memory cannot be nil")
	}

	if config.Space == nil {
		return nil, fmt.Errorf("address space cannot be nil")
	}

	granularity := config.VM.AllocationGranularity()
	if granularity == 0 || granularity&(granularity-1) != 0 {
		return nil, fmt.Errorf("allocation granularity must be a power of two - got 0x%x",
			granularity)
	}

	ptrs, err := memory.PointerMakerForSize(config.VM.PointerSize())
	if err != nil {
		return nil, err
	}

	return &Registry{
		config:      config,
		granularity: granularity,
		ptrs:        ptrs,
	}, nil
}

func NewOrExit(config Config) *Registry {
	r, err := New(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create trampoline registry - %w", err))
	}
	return r
}

// NewForProcess returns a Registry for the current process.
func NewForProcess() *Registry {
	return NewOrExit(Config{
		VM:    memory.CurrentVirtualMemory(),
		Space: memory.CurrentProcess(),
	})
}

// Registry is an append-only list of Blocks. It is not safe for
// concurrent use.
type Registry struct {
	config      Config
	granularity uintptr
	ptrs        memory.PointerMaker
	blocks      []*Block
}

// Flat returns true if every address is reachable from every other
// address, which makes trampolines unnecessary.
func (o *Registry) Flat() bool {
	return o.ptrs.Size() <= 4
}

// Blocks returns a snapshot of the reserved blocks in the order they
// were reserved.
func (o *Registry) Blocks() []Block {
	blocks := make([]Block, len(o.blocks))
	for i, b := range o.blocks {
		blocks[i] = *b
	}

	return blocks
}

func (o *Registry) RelayStubOrExit(anchor uintptr, target uintptr) uintptr {
	addr, err := o.RelayStub(anchor, target)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}

// RelayStub returns the address of a relay stub that jumps to target
// and lies within reach of anchor. In a flat address space target
// is returned unchanged.
func (o *Registry) RelayStub(anchor uintptr, target uintptr) (uintptr, error) {
	if o.Flat() {
		return target, nil
	}

	addr, err := o.alloc(anchor, RelayStubSize, 16)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate relay stub for 0x%x - %w", anchor, err)
	}

	err = o.write(addr, EncodeRelayStub(uint64(target)))
	if err != nil {
		return 0, err
	}

	return addr, nil
}

func (o *Registry) PointerOrExit(anchor uintptr, value uintptr) uintptr {
	addr, err := o.Pointer(anchor, value)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}

// Pointer stores value in a pointer-sized slot within reach of anchor
// and returns the address of the slot. It is used to retarget a
// RIP-relative memory operand. In a flat address space value is
// returned unchanged.
func (o *Registry) Pointer(anchor uintptr, value uintptr) (uintptr, error) {
	if o.Flat() {
		return value, nil
	}

	size := uintptr(o.ptrs.Size())

	addr, err := o.alloc(anchor, size, size)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate pointer for 0x%x - %w", anchor, err)
	}

	err = o.write(addr, o.ptrs.FromUintptr(value).Bytes())
	if err != nil {
		return 0, err
	}

	return addr, nil
}

func (o *Registry) ScratchOrExit(anchor uintptr, size uintptr, align uintptr) uintptr {
	addr, err := o.Scratch(anchor, size, align)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}

// Scratch returns the address of size bytes aligned to align within
// reach of anchor. align must be a power of two, zero means one.
//
// Scratch fails with ErrFlatAddressSpace in a flat address space,
// since there is no original address to hand back.
func (o *Registry) Scratch(anchor uintptr, size uintptr, align uintptr) (uintptr, error) {
	if o.Flat() {
		return 0, ErrFlatAddressSpace
	}

	addr, err := o.alloc(anchor, size, align)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate 0x%x bytes of scratch space for 0x%x - %w",
			size, anchor, err)
	}

	return addr, nil
}

func (o *Registry) alloc(anchor uintptr, size uintptr, align uintptr) (uintptr, error) {
	if align == 0 {
		align = 1
	}

	if align&(align-1) != 0 {
		return 0, fmt.Errorf("alignment must be a power of two - got 0x%x", align)
	}

	if size == 0 || size > o.granularity || align > o.granularity {
		return 0, fmt.Errorf("size 0x%x with alignment 0x%x does not fit in a 0x%x byte block",
			size, align, o.granularity)
	}

	for _, block := range o.blocks {
		addr, ok := block.carve(anchor, size, align)
		if ok {
			return addr, nil
		}
	}

	base, err := o.reserveNear(anchor)
	if err != nil {
		return 0, err
	}

	block := &Block{
		Base:     base,
		Capacity: o.granularity,
	}

	o.blocks = append(o.blocks, block)

	if o.config.OptLogger != nil {
		o.config.OptLogger.Printf("reserved trampoline block [0x%x, 0x%x) for anchor 0x%x",
			block.Base, block.End(), anchor)
	}

	addr, ok := block.carve(anchor, size, align)
	if !ok {
		return 0, fmt.Errorf("new block at 0x%x cannot serve anchor 0x%x", base, anchor)
	}

	return addr, nil
}

func (o *Registry) write(addr uintptr, data []byte) error {
	dst, err := o.config.Space.Bytes(addr, len(data))
	if err != nil {
		return fmt.Errorf("failed to write to trampoline memory at 0x%x - %w", addr, err)
	}

	copy(dst, data)

	return nil
}
