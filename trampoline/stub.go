package trampoline

import (
	"math"

	"gitlab.com/stephen-fox/sigkit/memory"
)

// RelayStubSize is the size of a relay stub in bytes.
const RelayStubSize = 14

// EncodeRelayStub returns a relay stub that jumps to target:
//
//	jmp qword ptr [rip+0]
//	dq target
//
// The stub is position independent and clobbers no registers.
func EncodeRelayStub(target uint64) []byte {
	stub := make([]byte, 0, RelayStubSize)
	stub = append(stub, 0xff, 0x25, 0x00, 0x00, 0x00, 0x00)
	stub = append(stub, memory.PointerMakerForX86_64().FromUint(target).Bytes()...)
	return stub
}

// Reachable returns true if a rel32 displacement anchored at anchor
// can refer to addr.
func Reachable(addr uintptr, anchor uintptr) bool {
	if addr >= anchor {
		return addr-anchor <= math.MaxInt32
	}

	return anchor-addr <= math.MaxInt32
}
