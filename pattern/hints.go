package pattern

import "sort"

// NewHintCache creates an empty HintCache.
func NewHintCache() *HintCache {
	return &HintCache{
		hints: make(map[uint64][]uintptr),
	}
}

// HintCache maps pattern hashes to addresses where the pattern was
// previously found. Hints are advisory. A search verifies every hint
// within its segments before using it. If one no longer matches, every
// hint for that pattern is forgotten and the search scans instead.
//
// Hints recorded by a Context's own scans are only trusted as the
// complete result for segments that were scanned completely. Hints
// seeded by the caller, e.g. from a previous run, are always trusted
// as complete, so a caller should seed every match of a pattern and
// not just some of them.
type HintCache struct {
	hints map[uint64][]uintptr
	count int
}

// Hint records addr for hash. It returns false if the pair was
// already known.
func (o *HintCache) Hint(hash uint64, addr uintptr) bool {
	addrs := o.hints[hash]
	for _, existing := range addrs {
		if existing == addr {
			return false
		}
	}

	o.hints[hash] = append(addrs, addr)
	o.count++

	return true
}

// Lookup returns the addresses recorded for hash in the order they
// were added.
func (o *HintCache) Lookup(hash uint64) []uintptr {
	return append([]uintptr(nil), o.hints[hash]...)
}

// Forget removes every hint recorded for hash.
func (o *HintCache) Forget(hash uint64) {
	o.count -= len(o.hints[hash])
	delete(o.hints, hash)
}

// Len returns the number of (hash, address) pairs in the cache.
func (o *HintCache) Len() int {
	return o.count
}

// Range calls fn for every pair in the cache, ordered by hash and
// then by insertion. It stops when fn returns false.
func (o *HintCache) Range(fn func(hash uint64, addr uintptr) bool) {
	hashes := make([]uint64, 0, len(o.hints))
	for hash := range o.hints {
		hashes = append(hashes, hash)
	}

	sort.Slice(hashes, func(i, j int) bool {
		return hashes[i] < hashes[j]
	})

	for _, hash := range hashes {
		for _, addr := range o.hints[hash] {
			if !fn(hash, addr) {
				return
			}
		}
	}
}
