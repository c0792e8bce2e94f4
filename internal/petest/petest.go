// Package petest builds minimal Portable Executable images for tests.
package petest

import (
	"encoding/binary"

	"gitlab.com/stephen-fox/sigkit/bstruct"
)

const (
	FileAlignment    = 0x200
	SectionAlignment = 0x1000

	peOffset         = 0x40
	fileHeaderSize   = 20
	optHeader64Size  = 240
	sectionEntrySize = 40
)

// Section describes a section of a test image. Data is stored as
// the section's raw data and VirtualSize defaults to len(Data).
type Section struct {
	Name            string
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics uint32
	Data            []byte
}

type fileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	PointerToSymbolTable uint32
	NumberOfSymbols      uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type dataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type optionalHeader64 struct {
	Magic                       uint16
	MajorLinkerVersion          uint8
	MinorLinkerVersion          uint8
	SizeOfCode                  uint32
	SizeOfInitializedData       uint32
	SizeOfUninitializedData     uint32
	AddressOfEntryPoint         uint32
	BaseOfCode                  uint32
	ImageBase                   uint64
	SectionAlignment            uint32
	FileAlignment               uint32
	MajorOperatingSystemVersion uint16
	MinorOperatingSystemVersion uint16
	MajorImageVersion           uint16
	MinorImageVersion           uint16
	MajorSubsystemVersion       uint16
	MinorSubsystemVersion       uint16
	Win32VersionValue           uint32
	SizeOfImage                 uint32
	SizeOfHeaders               uint32
	CheckSum                    uint32
	Subsystem                   uint16
	DllCharacteristics          uint16
	SizeOfStackReserve          uint64
	SizeOfStackCommit           uint64
	SizeOfHeapReserve           uint64
	SizeOfHeapCommit            uint64
	LoaderFlags                 uint32
	NumberOfRvaAndSizes         uint32
	DataDirectory               [16]dataDirectory
}

type sectionHeader struct {
	Name                 [8]uint8
	VirtualSize          uint32
	VirtualAddress       uint32
	SizeOfRawData        uint32
	PointerToRawData     uint32
	PointerToRelocations uint32
	PointerToLinenumbers uint32
	NumberOfRelocations  uint16
	NumberOfLinenumbers  uint16
	Characteristics      uint32
}

// Build returns a PE32+ file with the given preferred base and sections.
// Sections must be sorted by virtual address.
func Build(imageBase uint64, sections []Section) []byte {
	headersEnd := peOffset + 4 + fileHeaderSize + optHeader64Size + sectionEntrySize*len(sections)
	sizeOfHeaders := alignUp(uint32(headersEnd), FileAlignment)

	sizeOfImage := uint32(SectionAlignment)
	for _, s := range sections {
		end := alignUp(s.VirtualAddress+virtualSize(s), SectionAlignment)
		if end > sizeOfImage {
			sizeOfImage = end
		}
	}

	out := make([]byte, peOffset, sizeOfHeaders)
	out[0], out[1] = 'M', 'Z'
	binary.LittleEndian.PutUint32(out[0x3c:], peOffset)
	out = append(out, "PE\x00\x00"...)

	out = appendStruct(out, fileHeader{
		Machine:              0x8664,
		NumberOfSections:     uint16(len(sections)),
		SizeOfOptionalHeader: optHeader64Size,
		Characteristics:      0x22,
	})

	out = appendStruct(out, optionalHeader64{
		Magic:                 0x20b,
		ImageBase:             imageBase,
		SectionAlignment:      SectionAlignment,
		FileAlignment:         FileAlignment,
		MajorSubsystemVersion: 6,
		SizeOfImage:           sizeOfImage,
		SizeOfHeaders:         sizeOfHeaders,
		Subsystem:             3,
		NumberOfRvaAndSizes:   16,
	})

	rawOffset := sizeOfHeaders
	for _, s := range sections {
		header := sectionHeader{
			VirtualSize:     virtualSize(s),
			VirtualAddress:  s.VirtualAddress,
			SizeOfRawData:   alignUp(uint32(len(s.Data)), FileAlignment),
			Characteristics: s.Characteristics,
		}
		copy(header.Name[:], s.Name)

		if header.SizeOfRawData > 0 {
			header.PointerToRawData = rawOffset
		}

		out = appendStruct(out, header)

		rawOffset += header.SizeOfRawData
	}

	out = append(out, make([]byte, int(sizeOfHeaders)-len(out))...)

	for _, s := range sections {
		raw := make([]byte, alignUp(uint32(len(s.Data)), FileAlignment))
		copy(raw, s.Data)
		out = append(out, raw...)
	}

	return out
}

func appendStruct(b []byte, s interface{}) []byte {
	return append(b, bstruct.StructToBytesOrExit(s, binary.LittleEndian, nil)...)
}

// Image returns the in-memory layout of Build's output, as a loader
// would map it.
func Image(imageBase uint64, sections []Section) []byte {
	file := Build(imageBase, sections)

	sizeOfImage := binary.LittleEndian.Uint32(file[peOffset+4+fileHeaderSize+56:])
	sizeOfHeaders := binary.LittleEndian.Uint32(file[peOffset+4+fileHeaderSize+60:])

	mapped := make([]byte, sizeOfImage)
	copy(mapped, file[:sizeOfHeaders])

	for _, s := range sections {
		copy(mapped[s.VirtualAddress:], s.Data)
	}

	return mapped
}

func virtualSize(s Section) uint32 {
	if s.VirtualSize != 0 {
		return s.VirtualSize
	}

	return uint32(len(s.Data))
}

func alignUp(v uint32, a uint32) uint32 {
	return (v + a - 1) &^ (a - 1)
}
