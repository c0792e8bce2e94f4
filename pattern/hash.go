package pattern

import "hash/fnv"

// Hash returns the hint cache key of a signature: the 64-bit FNV-1
// hash of its source text.
func Hash(signature string) uint64 {
	h := fnv.New64()
	h.Write([]byte(signature))
	return h.Sum64()
}

func hashBytesAndMask(b []byte, mask []byte) uint64 {
	h := fnv.New64()
	h.Write(b)
	h.Write(mask)
	return h.Sum64()
}
