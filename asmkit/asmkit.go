// Package asmkit disassembles x86 and ARM machine code.
package asmkit

import (
	"errors"
	"fmt"

	"golang.org/x/arch/arm/armasm"
	"golang.org/x/arch/x86/x86asm"
)

const (
	SkipSyntax  DisassemblySyntax = ""
	ATTSyntax   DisassemblySyntax = "att"
	GoSyntax    DisassemblySyntax = "go"
	IntelSyntax DisassemblySyntax = "intel"
)

// errStop is returned by the Take callback to end decoding early.
var errStop = errors.New("stop")

type DisassemblySyntax string

type DisassemblerConfig struct {
	Syntax     DisassemblySyntax
	ArchConfig interface{}
}

type X86Config struct {
	Bits int
}

type ARMConfig struct {
	Mode armasm.Mode
}

func NewDisassemblerOrExit(config DisassemblerConfig) *Disassembler {
	d, err := NewDisassembler(config)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create disassembler - %w", err))
	}
	return d
}

func NewDisassembler(config DisassemblerConfig) (*Disassembler, error) {
	switch assertedConfig := config.ArchConfig.(type) {
	case ARMConfig:
		var dissassemFn func(inst armasm.Inst, pc uint64) string
		switch config.Syntax {
		case SkipSyntax:
			// Do nothing.
		case ATTSyntax:
			dissassemFn = func(inst armasm.Inst, _ uint64) string {
				return armasm.GNUSyntax(inst)
			}
		case GoSyntax:
			dissassemFn = func(inst armasm.Inst, pc uint64) string {
				return armasm.GoSyntax(inst, pc, nil, nil)
			}
		default:
			return nil, fmt.Errorf("unsupported syntax type for arm: %q", config.Syntax)
		}

		return &Disassembler{
			disassOneInstFn: func(remainingInsts []byte, pc uint64) (Inst, error) {
				armInst, err := armasm.Decode(remainingInsts, assertedConfig.Mode)
				if err != nil {
					return Inst{}, err
				}

				var disassembly string
				if dissassemFn != nil {
					disassembly = dissassemFn(armInst, pc)
				}

				return Inst{
					Bin:  copySlice(remainingInsts, armInst.Len),
					Len:  armInst.Len,
					Addr: pc,
					Dis:  disassembly,
					Inst: armInst,
				}, nil
			},
		}, nil
	case X86Config:
		switch assertedConfig.Bits {
		case 16, 32, 64:
		default:
			return nil, fmt.Errorf("unsupported x86 bits: %d", assertedConfig.Bits)
		}

		var disassemblyFn func(inst x86asm.Inst, pc uint64) string
		switch config.Syntax {
		case SkipSyntax:
			// Do nothing.
		case ATTSyntax:
			disassemblyFn = func(inst x86asm.Inst, pc uint64) string {
				return x86asm.GNUSyntax(inst, pc, nil)
			}
		case GoSyntax:
			disassemblyFn = func(inst x86asm.Inst, pc uint64) string {
				return x86asm.GoSyntax(inst, pc, nil)
			}
		case IntelSyntax:
			disassemblyFn = func(inst x86asm.Inst, pc uint64) string {
				return x86asm.IntelSyntax(inst, pc, nil)
			}
		default:
			return nil, fmt.Errorf("unsupported syntax type for x86: %q", config.Syntax)
		}

		return &Disassembler{
			disassOneInstFn: func(remainingInsts []byte, pc uint64) (Inst, error) {
				x86Inst, err := x86asm.Decode(remainingInsts, assertedConfig.Bits)
				if err != nil {
					return Inst{}, err
				}

				var disassembly string
				if disassemblyFn != nil {
					disassembly = disassemblyFn(x86Inst, pc)
				}

				return Inst{
					Bin:  copySlice(remainingInsts, x86Inst.Len),
					Len:  x86Inst.Len,
					Addr: pc,
					Dis:  disassembly,
					Inst: x86Inst,
				}, nil
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported config type: %T", assertedConfig)
	}
}

func copySlice(src []byte, numBytes int) []byte {
	cp := make([]byte, numBytes)

	copy(cp, src[0:numBytes])

	return cp
}

type Disassembler struct {
	disassOneInstFn func(remainingInsts []byte, pc uint64) (Inst, error)
}

// All decodes every instruction in rawInstructions, which are located
// at address pc, and passes them to onDecodeFn.
func (o *Disassembler) All(rawInstructions []byte, pc uint64, onDecodeFn func(Inst) error) error {
	index := 0

	for {
		if isDone(rawInstructions, index) {
			return nil
		}

		inst, err := o.disassOneInstFn(rawInstructions[index:], pc+uint64(index))
		if err != nil {
			return fmt.Errorf("failed to decode instruction %d - %w - remaining data: 0x%x",
				index, err, rawInstructions[index:])
		}

		inst.Index = index

		err = onDecodeFn(inst)
		if err != nil {
			return fmt.Errorf("on decode function failed for instruction %d (%q) - %w",
				index, inst.Dis, err)
		}

		index += inst.Len
	}
}

// Take decodes at most n instructions. Decoding stops without an error
// if the data runs out first.
func (o *Disassembler) Take(rawInstructions []byte, pc uint64, n int) ([]Inst, error) {
	var insts []Inst
	if n <= 0 {
		return nil, nil
	}

	err := o.All(rawInstructions, pc, func(inst Inst) error {
		insts = append(insts, inst)
		if len(insts) == n {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return insts, err
	}

	return insts, nil
}

// Next decodes the first instruction in rawInstructions, which is
// located at address pc.
func (o *Disassembler) Next(rawInstructions []byte, pc uint64) (Inst, error) {
	return o.disassOneInstFn(rawInstructions, pc)
}

type Inst struct {
	Bin   []byte
	Len   int
	Index int
	Addr  uint64
	Dis   string
	Inst  interface{}
}

// BranchTarget returns the absolute target of an x86 instruction
// with a relative branch operand.
func BranchTarget(inst Inst) (uint64, bool) {
	x86Inst, ok := inst.Inst.(x86asm.Inst)
	if !ok {
		return 0, false
	}

	for _, arg := range x86Inst.Args {
		if arg == nil {
			break
		}

		rel, isRel := arg.(x86asm.Rel)
		if isRel {
			return inst.Addr + uint64(inst.Len) + uint64(int64(rel)), true
		}
	}

	return 0, false
}

func isDone(rawInstructions []byte, index int) bool {
	return index >= len(rawInstructions)
}
