// Package hook installs call and jump hooks into x86 machine code.
//
// A hook overwrites a 5 byte CALL rel32 or JMP rel32 instruction so
// that it branches to a replacement. When the replacement is beyond
// the reach of a rel32 displacement, the instruction is pointed at a
// relay stub allocated near the hook site by a trampoline.Registry.
package hook
