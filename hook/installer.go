package hook

import (
	"errors"
	"fmt"
	"log"

	"gitlab.com/stephen-fox/sigkit/asmkit"
	"gitlab.com/stephen-fox/sigkit/memory"
	"gitlab.com/stephen-fox/sigkit/trampoline"
	"golang.org/x/arch/x86/x86asm"
)

// ErrNotBranch is returned when a hook site does not hold a
// CALL rel32 or JMP rel32 instruction.
var ErrNotBranch = errors.New("instruction is not a call or jmp rel32")

// Config configures an Installer.
type Config struct {
	// Space is the address space that is patched.
	Space memory.Space

	// VM provides memory protection changes and the pointer size.
	VM memory.VirtualMemory

	// OptTrampolines allocates relay stubs and pointer slots.
	// A new registry over Space and VM is created if nil.
	OptTrampolines *trampoline.Registry

	// OptLogger logs every patched site if specified.
	OptLogger *log.Logger
}

// New creates a new *Installer.
func New(config Config) (*Installer, error) {
	if config.Space == nil {
		return nil, fmt.Errorf("address space cannot be nil")
	}

	if config.VM == nil {
		return nil, fmt.Errorf("virtual memory cannot be nil")
	}

	if config.OptTrampolines == nil {
		registry, err := trampoline.New(trampoline.Config{
			VM:        config.VM,
			Space:     config.Space,
			OptLogger: config.OptLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create trampoline registry - %w", err)
		}

		config.OptTrampolines = registry
	}

	disass, err := asmkit.NewDisassembler(asmkit.DisassemblerConfig{
		Syntax:     asmkit.IntelSyntax,
		ArchConfig: asmkit.X86Config{Bits: config.VM.PointerSize() * 8},
	})
	if err != nil {
		return nil, err
	}

	return &Installer{
		config:  config,
		patcher: memory.NewPatcher(config.Space, config.VM),
		disass:  disass,
	}, nil
}

func NewOrExit(config Config) *Installer {
	i, err := New(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create hook installer - %w", err))
	}
	return i
}

// NewForProcess returns an Installer for the current process.
func NewForProcess() *Installer {
	return NewOrExit(Config{
		Space: memory.CurrentProcess(),
		VM:    memory.CurrentVirtualMemory(),
	})
}

// Installer writes hooks. It is not safe for concurrent use.
type Installer struct {
	config  Config
	patcher *memory.Patcher
	disass  *asmkit.Disassembler
}

// Patcher returns the memory.Patcher used to write hooks.
func (o *Installer) Patcher() *memory.Patcher {
	return o.patcher
}

// Trampolines returns the registry that relay stubs are allocated from.
func (o *Installer) Trampolines() *trampoline.Registry {
	return o.config.OptTrampolines
}

func (o *Installer) InjectHookOrExit(site uintptr, dest uintptr, kind Kind) {
	err := o.InjectHook(site, dest, kind)
	if err != nil {
		DefaultExitFn(err)
	}
}

// InjectHook writes a kind rel32 instruction at site that branches to
// dest. If dest is out of reach, the instruction branches to a relay
// stub that jumps to dest instead.
func (o *Installer) InjectHook(site uintptr, dest uintptr, kind Kind) error {
	opcode, err := kind.opcode()
	if err != nil {
		return err
	}

	target, err := o.reachableTarget(site, dest)
	if err != nil {
		return err
	}

	rel, err := o.patcher.Displacement(site+1, target, 0)
	if err != nil {
		return fmt.Errorf("failed to hook 0x%x - %w", site, err)
	}

	inst := make([]byte, branchSize)
	inst[0] = opcode
	copy(inst[1:], memory.PointerMakerForX86_32().FromUint(uint64(uint32(rel))).Bytes())

	err = o.patcher.Patch(site, inst)
	if err != nil {
		return fmt.Errorf("failed to write %s at 0x%x - %w", kind, site, err)
	}

	if o.config.OptLogger != nil {
		if target != dest {
			o.config.OptLogger.Printf("hooked %s at 0x%x -> 0x%x via relay stub 0x%x",
				kind, site, dest, target)
		} else {
			o.config.OptLogger.Printf("hooked %s at 0x%x -> 0x%x", kind, site, dest)
		}
	}

	return nil
}

// reachableTarget returns dest if a branch at site can reach it.
// Otherwise, it returns the address of a relay stub that can be
// reached from site.
func (o *Installer) reachableTarget(site uintptr, dest uintptr) (uintptr, error) {
	_, err := o.patcher.Displacement(site+1, dest, 0)
	if err == nil {
		return dest, nil
	}

	if !errors.Is(err, memory.ErrDisplacementRange) {
		return 0, err
	}

	stub, err := o.config.OptTrampolines.RelayStub(site+branchSize, dest)
	if err != nil {
		return 0, fmt.Errorf("failed to hook 0x%x - %w", site, err)
	}

	return stub, nil
}

func (o *Installer) ReadCallFromOrExit(site uintptr, offset int64) uintptr {
	addr, err := o.ReadCallFrom(site, offset)
	if err != nil {
		DefaultExitFn(err)
	}
	return addr
}

// ReadCallFrom returns the target of the CALL rel32 or JMP rel32
// instruction at site, plus offset.
func (o *Installer) ReadCallFrom(site uintptr, offset int64) (uintptr, error) {
	_, target, err := o.branchAt(site)
	if err != nil {
		return 0, err
	}

	return target + uintptr(offset), nil
}

func (o *Installer) InterceptCallOrExit(site uintptr, dest uintptr) uintptr {
	old, err := o.InterceptCall(site, dest)
	if err != nil {
		DefaultExitFn(err)
	}
	return old
}

// InterceptCall retargets the CALL rel32 or JMP rel32 instruction at
// site to dest and returns its previous target. The kind of
// instruction is preserved.
func (o *Installer) InterceptCall(site uintptr, dest uintptr) (uintptr, error) {
	kind, old, err := o.branchAt(site)
	if err != nil {
		return 0, err
	}

	err = o.InjectHook(site, dest, kind)
	if err != nil {
		return 0, err
	}

	return old, nil
}

func (o *Installer) InterceptEachOrExit(sites []uintptr, destFn func(i int, site uintptr, old uintptr) uintptr) {
	err := o.InterceptEach(sites, destFn)
	if err != nil {
		DefaultExitFn(err)
	}
}

// InterceptEach intercepts each site in order. destFn is called with
// the previous target of each site and returns its new destination.
// It stops at the first failure.
func (o *Installer) InterceptEach(sites []uintptr, destFn func(i int, site uintptr, old uintptr) uintptr) error {
	for i, site := range sites {
		_, old, err := o.branchAt(site)
		if err != nil {
			return fmt.Errorf("site %d - %w", i, err)
		}

		_, err = o.InterceptCall(site, destFn(i, site, old))
		if err != nil {
			return fmt.Errorf("site %d - %w", i, err)
		}
	}

	return nil
}

// branchAt decodes the instruction at site and returns its kind
// and target.
func (o *Installer) branchAt(site uintptr) (Kind, uintptr, error) {
	raw, err := o.config.Space.Bytes(site, branchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read instruction at 0x%x - %w", site, err)
	}

	inst, err := o.disass.Next(raw, uint64(site))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode instruction at 0x%x (0x%x) - %w",
			site, raw, ErrNotBranch)
	}

	var kind Kind
	switch {
	case inst.Len == branchSize && inst.Bin[0] == callOpcode:
		kind = Call
	case inst.Len == branchSize && inst.Bin[0] == jumpOpcode:
		kind = Jump
	default:
		return 0, 0, fmt.Errorf("0x%x holds %q - %w", site, inst.Dis, ErrNotBranch)
	}

	x86Inst := inst.Inst.(x86asm.Inst)
	if x86Inst.Op != x86asm.CALL && x86Inst.Op != x86asm.JMP {
		return 0, 0, fmt.Errorf("0x%x holds %q - %w", site, inst.Dis, ErrNotBranch)
	}

	target, ok := asmkit.BranchTarget(inst)
	if !ok {
		return 0, 0, fmt.Errorf("0x%x holds %q - %w", site, inst.Dis, ErrNotBranch)
	}

	if o.patcher.Pointers().Size() <= 4 {
		target = uint64(uint32(target))
	}

	return kind, uintptr(target), nil
}
