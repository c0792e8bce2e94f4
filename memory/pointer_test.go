package memory

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPointerMakerForX86_32_FromUint(t *testing.T) {
	pm := PointerMakerForX86_32()
	pointer := pm.FromUint(0xdeadbeef)
	exp := []byte{0xef, 0xbe, 0xad, 0xde}
	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}
}

func TestPointerMakerForX86_32_FromHexBytes(t *testing.T) {
	exp := []byte{0xef, 0xbe, 0xad, 0x00}

	pm := PointerMakerForX86_32()
	pointer, err := pm.FromHexBytes([]byte("0xadbeef"), binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}

	pointer, err = pm.FromHexBytes([]byte("0xefbead"), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}
}

func TestPointerMakerForX86_64_FromUint(t *testing.T) {
	pm := PointerMakerForX86_64()
	pointer := pm.FromUint(0x00000000deadbeef)
	exp := []byte{0xef, 0xbe, 0xad, 0xde, 0x00, 0x00, 0x00, 0x00}
	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}
}

func TestPointerMakerForX86_64_FromHexBytes(t *testing.T) {
	exp := []byte{0xef, 0xbe, 0xad, 0xde, 0x00, 0x00, 0x00, 0x00}

	pm := PointerMakerForX86_64()
	pointer, err := pm.FromHexBytes([]byte("0x00000000deadbeef"), binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}

	pointer, err = pm.FromHexBytes([]byte("0xefbeadde00000000"), binary.LittleEndian)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(pointer.Bytes(), exp) {
		t.Fatalf("expected 0x%x - got 0x%x", exp, pointer.Bytes())
	}
}

func TestPointer_Uint(t *testing.T) {
	pm := PointerMakerForX86_64()
	pointer, err := pm.FromHexBytes([]byte("0x00000000deadbeef"), binary.BigEndian)
	if err != nil {
		t.Fatal(err)
	}

	address := pointer.Uint()
	if address != 0xdeadbeef {
		t.Fatalf("expected 0xdeadbeef - got %x", address)
	}
}

func TestPointerMaker_Read(t *testing.T) {
	pm := PointerMakerForX86_64()

	pointer, err := pm.Read([]byte{0x00, 0x10, 0x40, 0x40, 0x01, 0x00, 0x00, 0x00, 0xcc})
	if err != nil {
		t.Fatal(err)
	}

	if pointer.Uintptr() != 0x140401000 {
		t.Fatalf("expected 0x140401000 - got 0x%x", pointer.Uint())
	}

	_, err = pm.Read([]byte{0x00, 0x10})
	if err == nil {
		t.Fatal("expected an error for a short buffer")
	}
}

func TestPointerMakerFor_BadSize(t *testing.T) {
	_, err := PointerMakerFor(binary.LittleEndian, 3)
	if err == nil {
		t.Fatal("expected an error for a 3 byte pointer")
	}

	_, err = PointerMakerFor(nil, 8)
	if err == nil {
		t.Fatal("expected an error for nil endianness")
	}
}

func TestPointer_Offset_wraps(t *testing.T) {
	pm := PointerMakerForX86_32()

	pointer := pm.FromUint(0xfffffff0).Offset(0x20)
	if pointer.Uint() != 0x10 {
		t.Fatalf("expected 0x10 - got 0x%x", pointer.Uint())
	}
}
