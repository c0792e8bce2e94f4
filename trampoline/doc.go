// Package trampoline places code and data within rel32 reach of
// a hook site.
//
// A 64-bit near call or jump encodes a signed 32-bit displacement.
// When a hook's destination is further than 2 GiB from the hook site,
// the site must instead branch to a relay stub that sits within reach
// and performs an absolute jump to the destination. A Registry finds
// free memory near an anchor address, reserves it one allocation
// granularity unit at a time and carves relay stubs, pointers and
// scratch space out of it.
//
// Blocks are never released. Hooks installed through a relay stub are
// expected to stay in place for the life of the process, and freeing
// a block would leave live jumps pointing at unmapped memory.
//
// In a 32-bit address space every address is reachable, so a Registry
// hands back the requested target unchanged and reserves nothing.
package trampoline
