// Package memory provides functionality for reading, writing, and managing
// the memory of a running process.
//
// Address spaces
//
// A Space exposes the bytes of an address space as slices. CurrentProcess
// returns the Space of the calling process, where a slice is simply a view
// over raw memory. Simulated is an in-process stand-in for a full address
// space: it maps byte buffers at arbitrary addresses, answers region queries
// and reserves pages the same way the operating system would. It is used to
// scan images loaded from disk and to exercise allocators deterministically.
//
// Operating system memory services
//
// VirtualMemory abstracts the three services needed to place and patch code
// at runtime: querying the region that contains an address, reserving and
// committing pages at a chosen address, and changing page protection.
// CurrentVirtualMemory returns the implementation for the host platform.
//
// Patching
//
// Patcher writes bytes, pointers and rel32 displacements into a Space.
// Every write is wrapped by Unprotect, which temporarily makes the target
// pages writable and restores their previous protection afterwards.
//
// Cross-version layouts
//
// A FieldLayout maps logical field names to byte offsets for each known
// variant of a binary. Bind resolves the offsets against one object instance.
package memory
