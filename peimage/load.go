package peimage

import (
	"fmt"
	"os"

	"github.com/Binject/debug/pe"
	"gitlab.com/stephen-fox/sigkit/memory"
)

// LoadFile maps the image file at filePath into sim at the image's
// preferred base, laying out the headers and every section at its
// virtual address. The mapping is readable and executable.
func LoadFile(filePath string, sim *memory.Simulated) (*Image, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	peFile, err := pe.NewFile(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image file - %w", err)
	}

	image, err := newImage(peFile)
	if err != nil {
		return nil, err
	}

	if image.SizeOfImage == 0 {
		return nil, fmt.Errorf("image has a size of zero")
	}

	mapped := make([]byte, image.SizeOfImage)

	headersSize := image.SizeOfHeaders
	if headersSize > image.SizeOfImage {
		headersSize = image.SizeOfImage
	}

	_, err = f.ReadAt(mapped[:headersSize], 0)
	if err != nil {
		return nil, fmt.Errorf("failed to read image headers - %w", err)
	}

	for _, s := range peFile.Sections {
		if s.Size == 0 {
			continue
		}

		if s.VirtualAddress >= image.SizeOfImage {
			return nil, fmt.Errorf("section %s starts at 0x%x, beyond the image size of 0x%x",
				s.Name, s.VirtualAddress, image.SizeOfImage)
		}

		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s - %w", s.Name, err)
		}

		if s.VirtualSize != 0 && uint32(len(data)) > s.VirtualSize {
			data = data[:s.VirtualSize]
		}

		copy(mapped[s.VirtualAddress:], data)
	}

	base := uintptr(image.PreferredBase)

	err = sim.Map(base, mapped, memory.ProtRead|memory.ProtExec)
	if err != nil {
		return nil, fmt.Errorf("failed to map image at 0x%x - %w", base, err)
	}

	image.Base = base

	return image, nil
}
