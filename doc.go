// Package sigkit locates and patches machine code inside loaded
// executable images.
//
// APIs are separated into subpackages, and documented accordingly:
// pattern finds masked byte signatures, peimage enumerates the
// sections of a PE image, trampoline allocates relay stubs within
// rel32 reach and hook installs call and jump hooks.
//
// For scripting convenience, "OrExit" functions and methods are provided.
// Any errors encountered by these functions are treated as fatal. In such
// cases, an exit handler function is invoked.
package sigkit
