package memory

import (
	"errors"
	"fmt"
	"io"
	"unsafe"
)

var (
	// ErrUnmapped is returned when an address range is not backed
	// by memory in a Space.
	ErrUnmapped = errors.New("address range is not mapped")
)

// Space provides access to the bytes of an address space.
type Space interface {
	// Bytes returns a slice that aliases the n bytes starting
	// at addr. Writes to the slice modify the address space.
	Bytes(addr uintptr, n int) ([]byte, error)
}

// CurrentProcess returns the Space of the calling process.
//
// The returned Space performs no mapping checks. Touching an address
// that is not mapped faults, exactly like dereferencing a bad pointer.
func CurrentProcess() Space {
	return processSpace{}
}

type processSpace struct{}

func (processSpace) Bytes(addr uintptr, n int) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("cannot access null address - %w", ErrUnmapped)
	}

	if n < 0 {
		return nil, fmt.Errorf("invalid length: %d", n)
	}

	if n == 0 {
		return nil, nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n), nil
}

// NewReaderAt returns an io.ReaderAt that reads from space, treating
// offset zero as base.
func NewReaderAt(space Space, base uintptr) io.ReaderAt {
	return &spaceReaderAt{
		space: space,
		base:  base,
	}
}

type spaceReaderAt struct {
	space Space
	base  uintptr
}

func (o *spaceReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset: %d", off)
	}

	b, err := o.space.Bytes(o.base+uintptr(off), len(p))
	if err != nil {
		return 0, io.EOF
	}

	return copy(p, b), nil
}
