// Package peimage enumerates the sections of Portable Executable images
// and turns them into scan segments.
package peimage

import (
	"errors"
	"fmt"

	"github.com/Binject/debug/pe"
	"gitlab.com/stephen-fox/sigkit/memory"
)

// Section characteristic flags.
const (
	ScnCntCode              uint32 = 0x00000020
	ScnCntInitializedData   uint32 = 0x00000040
	ScnCntUninitializedData uint32 = 0x00000080
	ScnMemExecute           uint32 = 0x20000000
	ScnMemRead              uint32 = 0x40000000
	ScnMemWrite             uint32 = 0x80000000
)

var (
	// ErrNoOptionalHeader is returned for images without an
	// optional header, such as object files.
	ErrNoOptionalHeader = errors.New("image has no optional header")
)

// Section is one entry of an image's section table.
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics uint32
}

// Range returns the address range the section occupies when the
// image is loaded at base.
func (o Section) Range(base uintptr) memory.Range {
	start := base + uintptr(o.VirtualAddress)
	return memory.Range{
		Start: start,
		End:   start + uintptr(o.VirtualSize),
	}
}

// Image is the section table of a loaded image.
type Image struct {
	Base          uintptr
	PreferredBase uint64
	SizeOfImage   uint32
	SizeOfHeaders uint32
	PointerSize   int
	Sections      []Section
}

// Open parses the headers of the image loaded at base in space.
func Open(space memory.Space, base uintptr) (*Image, error) {
	f, err := pe.NewFileFromMemory(memory.NewReaderAt(space, base))
	if err != nil {
		return nil, fmt.Errorf("failed to parse image headers at 0x%x - %w", base, err)
	}

	image, err := newImage(f)
	if err != nil {
		return nil, err
	}

	image.Base = base

	return image, nil
}

func OpenOrExit(space memory.Space, base uintptr) *Image {
	image, err := Open(space, base)
	if err != nil {
		memory.DefaultExitFn(err)
	}
	return image
}

func newImage(f *pe.File) (*Image, error) {
	image := &Image{}

	switch h := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		image.PreferredBase = uint64(h.ImageBase)
		image.SizeOfImage = h.SizeOfImage
		image.SizeOfHeaders = h.SizeOfHeaders
		image.PointerSize = 4
	case *pe.OptionalHeader64:
		image.PreferredBase = h.ImageBase
		image.SizeOfImage = h.SizeOfImage
		image.SizeOfHeaders = h.SizeOfHeaders
		image.PointerSize = 8
	default:
		return nil, ErrNoOptionalHeader
	}

	for _, s := range f.Sections {
		size := s.VirtualSize
		if size == 0 {
			size = s.Size
		}

		image.Sections = append(image.Sections, Section{
			Name:            s.Name,
			VirtualAddress:  s.VirtualAddress,
			VirtualSize:     size,
			Characteristics: s.Characteristics,
		})
	}

	return image, nil
}

// SegmentsWithFlag returns the ranges of all sections that have any
// of the bits in flag set. A section that starts exactly where the
// previous matching section ends is merged into it, since nothing
// stops a pattern from crossing the boundary.
func (o *Image) SegmentsWithFlag(flag uint32) []memory.Range {
	var ranges []memory.Range
	for _, s := range o.Sections {
		if s.Characteristics&flag == 0 {
			continue
		}

		ranges = memory.AppendMerged(ranges, s.Range(o.Base))
	}

	return ranges
}

// ReadableSegments returns the merged ranges of all readable sections.
func (o *Image) ReadableSegments() []memory.Range {
	return o.SegmentsWithFlag(ScnMemRead)
}

// CodeSegments returns the merged ranges of all code sections.
func (o *Image) CodeSegments() []memory.Range {
	return o.SegmentsWithFlag(ScnCntCode)
}

// SectionByName returns the ranges of every section named name.
// Sections found by name are never merged. The boolean is false
// if the image has no such section.
func (o *Image) SectionByName(name string) ([]memory.Range, bool) {
	var ranges []memory.Range
	for _, s := range o.Sections {
		if s.Name == name {
			ranges = append(ranges, s.Range(o.Base))
		}
	}

	return ranges, len(ranges) > 0
}

// Range returns the address range of the whole image.
func (o *Image) Range() memory.Range {
	return memory.Range{
		Start: o.Base,
		End:   o.Base + uintptr(o.SizeOfImage),
	}
}

// ReadableSegments is a convenience wrapper around Open and
// Image.ReadableSegments.
func ReadableSegments(space memory.Space, base uintptr) ([]memory.Range, error) {
	image, err := Open(space, base)
	if err != nil {
		return nil, err
	}

	return image.ReadableSegments(), nil
}
