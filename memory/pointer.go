package memory

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// PointerMakerForX86_32 returns a PointerMaker for 32-bit x86.
func PointerMakerForX86_32() PointerMaker {
	return PointerMaker{
		byteOrder: binary.LittleEndian,
		ptrSize:   4,
	}
}

// PointerMakerForX86_64 returns a PointerMaker for 64-bit x86.
func PointerMakerForX86_64() PointerMaker {
	return PointerMaker{
		byteOrder: binary.LittleEndian,
		ptrSize:   8,
	}
}

// PointerMakerForSize returns a little endian PointerMaker for
// the given pointer size. It is typically called with the value
// of VirtualMemory.PointerSize.
func PointerMakerForSize(pointerSize int) (PointerMaker, error) {
	return PointerMakerFor(binary.LittleEndian, pointerSize)
}

func PointerMakerForOrExit(endianness binary.ByteOrder, pointerSize int) PointerMaker {
	pm, err := PointerMakerFor(endianness, pointerSize)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create pointer maker - %w", err))
	}
	return pm
}

func PointerMakerFor(endianness binary.ByteOrder, pointerSize int) (PointerMaker, error) {
	if endianness == nil {
		return PointerMaker{}, fmt.Errorf("endianness cannot be nil")
	}

	switch pointerSize {
	case 2, 4, 8:
	default:
		return PointerMaker{}, fmt.Errorf("unsupported pointer size: %d", pointerSize)
	}

	return PointerMaker{
		byteOrder: endianness,
		ptrSize:   pointerSize,
	}, nil
}

// PointerMaker encodes addresses as Pointer values of a fixed size
// and byte order.
type PointerMaker struct {
	byteOrder binary.ByteOrder
	ptrSize   int
}

// Size returns the size of the pointers created by the PointerMaker.
func (o PointerMaker) Size() int {
	return o.ptrSize
}

// FromUint returns a Pointer for address. Bits that do not fit
// in the pointer size are truncated.
func (o PointerMaker) FromUint(address uint64) Pointer {
	out := make([]byte, o.ptrSize)
	o.put(out, address)
	return Pointer{
		byteOrder: o.byteOrder,
		data:      out,
	}
}

// FromUintptr is a convenience wrapper around FromUint.
func (o PointerMaker) FromUintptr(address uintptr) Pointer {
	return o.FromUint(uint64(address))
}

// Read decodes a Pointer from the first Size bytes of b.
func (o PointerMaker) Read(b []byte) (Pointer, error) {
	if len(b) < o.ptrSize {
		return Pointer{}, fmt.Errorf("need %d bytes to read a pointer - got %d",
			o.ptrSize, len(b))
	}

	return Pointer{
		byteOrder: o.byteOrder,
		data:      append([]byte(nil), b[:o.ptrSize]...),
	}, nil
}

func (o PointerMaker) ParseUintPrefix(s string, base int, prefix string) (Pointer, error) {
	return o.ParseUint(strings.TrimPrefix(s, prefix), base)
}

func (o PointerMaker) ParseUint(s string, base int) (Pointer, error) {
	v, err := strconv.ParseUint(s, base, o.ptrSize*8)
	if err != nil {
		return Pointer{}, fmt.Errorf("failed to parse pointer string - %w", err)
	}

	return o.FromUint(v), nil
}

func (o PointerMaker) FromRawBytes(raw []byte, sourceEndianness binary.ByteOrder) (Pointer, error) {
	if len(raw) != o.ptrSize {
		return Pointer{}, fmt.Errorf("raw pointer must be %d bytes - got %d",
			o.ptrSize, len(raw))
	}

	return o.convert(append([]byte(nil), raw...), sourceEndianness), nil
}

func (o PointerMaker) FromHexStringOrExit(hexStr string, sourceEndianness binary.ByteOrder) Pointer {
	p, err := o.FromHexString(hexStr, sourceEndianness)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create pointer from hex string - %w", err))
	}
	return p
}

func (o PointerMaker) FromHexString(hexStr string, sourceEndianness binary.ByteOrder) (Pointer, error) {
	return o.FromHexBytes([]byte(hexStr), sourceEndianness)
}

func (o PointerMaker) FromHexBytes(hexBytes []byte, sourceEndianness binary.ByteOrder) (Pointer, error) {
	hexBytesNoPrefix := bytes.TrimPrefix(hexBytes, []byte("0x"))

	hexStrLen := len(hexBytesNoPrefix)
	if hexStrLen == 0 {
		return Pointer{}, fmt.Errorf("hex string cannot be zero-length")
	}

	maxLen := o.ptrSize * 2
	if hexStrLen > maxLen {
		return Pointer{}, fmt.Errorf("hex string cannot be longer than %d chars - it is %d chars long",
			maxLen, hexStrLen)
	}

	numZeros := maxLen - hexStrLen
	if numZeros > 0 {
		zeros := bytes.Repeat([]byte("0"), numZeros)
		if sourceEndianness.String() == binary.LittleEndian.String() {
			hexBytesNoPrefix = append(append([]byte(nil), hexBytesNoPrefix...), zeros...)
		} else {
			hexBytesNoPrefix = append(zeros, hexBytesNoPrefix...)
		}
	}

	decoded := make([]byte, o.ptrSize)
	_, err := hex.Decode(decoded, hexBytesNoPrefix)
	if err != nil {
		return Pointer{}, fmt.Errorf("failed to hex decode data - %w", err)
	}

	return o.convert(decoded, sourceEndianness), nil
}

// NullPtr returns a Pointer to address zero.
func (o PointerMaker) NullPtr() Pointer {
	return o.FromUint(0)
}

func (o PointerMaker) convert(b []byte, sourceEndianness binary.ByteOrder) Pointer {
	if sourceEndianness.String() != o.byteOrder.String() {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}

	return Pointer{
		byteOrder: o.byteOrder,
		data:      b,
	}
}

func (o PointerMaker) put(out []byte, v uint64) {
	switch o.ptrSize {
	case 2:
		o.byteOrder.PutUint16(out, uint16(v))
	case 4:
		o.byteOrder.PutUint32(out, uint32(v))
	case 8:
		o.byteOrder.PutUint64(out, v)
	default:
		panic(fmt.Sprintf("unsupported pointer size: %d", o.ptrSize))
	}
}

// Pointer is an encoded address.
type Pointer struct {
	byteOrder binary.ByteOrder
	data      []byte
}

// Bytes returns the encoded form of the pointer, suitable for
// writing to memory.
func (o Pointer) Bytes() []byte {
	return o.data
}

// Uint returns the address the pointer refers to.
func (o Pointer) Uint() uint64 {
	switch len(o.data) {
	case 2:
		return uint64(o.byteOrder.Uint16(o.data))
	case 4:
		return uint64(o.byteOrder.Uint32(o.data))
	case 8:
		return o.byteOrder.Uint64(o.data)
	default:
		return 0
	}
}

func (o Pointer) Uintptr() uintptr {
	return uintptr(o.Uint())
}

// Offset returns a new Pointer adjusted by delta. The result wraps
// around at the pointer size.
func (o Pointer) Offset(delta int64) Pointer {
	pm := PointerMaker{
		byteOrder: o.byteOrder,
		ptrSize:   len(o.data),
	}

	return pm.FromUint(o.Uint() + uint64(delta))
}

func (o Pointer) IsNull() bool {
	return o.Uint() == 0
}

// HexString returns the address in hex, zero-padded to the
// pointer size.
func (o Pointer) HexString() string {
	return fmt.Sprintf("0x%0*x", len(o.data)*2, o.Uint())
}
