// Package pattern locates code in module memory using masked byte
// signatures.
//
// A signature such as "48 8B ?? ?? E8 ? ? ? ?" is compiled into a
// Pattern: parallel byte and mask arrays where a zero mask byte marks
// a wildcard. A Context owns the process-lifetime state needed to
// search for patterns: the cached default scan segments, the HintCache
// and the Space that the segments live in. Each lookup returns a
// Search, which scans lazily and caches its matches.
//
// Match counts are enforced at the call site. Search.Count returns a
// *CountError when the number of matches differs from the expected
// number, which lets the caller fall back to a signature for another
// build. Search.CountOrExit treats the same condition as fatal.
package pattern
