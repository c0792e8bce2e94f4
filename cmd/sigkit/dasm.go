package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gitlab.com/stephen-fox/sigkit/asmkit"
	"gitlab.com/stephen-fox/sigkit/conv"
	"golang.org/x/arch/arm/armasm"
)

const (
	x86_32Platform = "x86_32"
	x86_64Platform = "x86_64"
	armPlatform    = "arm"

	hexFormat = "hex"
	rawFormat = "raw"
	b64Format = "b64"

	prettyFormat = "pretty"
	goFormat     = "go"
)

var (
	dasmArch   string
	dasmSyntax string
	dasmInput  string
	dasmOutput string
	dasmAddr   uint64
)

func init() {
	cmd := newDasmCmd()
	cmd.Flags().StringVar(&dasmArch, "arch", x86_64Platform,
		"Platform to decode for ("+x86_32Platform+", "+x86_64Platform+", "+armPlatform+")")
	cmd.Flags().StringVar(&dasmSyntax, "syntax", string(asmkit.IntelSyntax),
		"Assembly syntax (intel, att, go)")
	cmd.Flags().StringVar(&dasmInput, "input", hexFormat,
		"Input format when reading stdin (hex, raw, b64)")
	cmd.Flags().StringVar(&dasmOutput, "output", prettyFormat,
		"Output format (pretty, go)")
	cmd.Flags().Uint64Var(&dasmAddr, "addr", 0, "Address of the first instruction")
	rootCmd.AddCommand(cmd)
}

func newDasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dasm [hex]...",
		Short: "Disassemble machine code",
		Long: `The dasm command disassembles machine code given as hex arguments,
or read from stdin if no arguments are given. Hex input may be plain
pairs, a code-style string or a C array with comments.

Example:
  sigkit dasm --arch x86_32 31c04089c3cd80
  sigkit dasm --addr 0x140001000 "E8 FB EF FF FF"
  sigkit dasm --input raw < code.bin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDasm(args)
		},
	}
	return cmd
}

type dasmInst struct {
	Address     string `json:"address"`
	Bytes       string `json:"bytes"`
	Disassembly string `json:"disassembly"`
}

func runDasm(args []string) error {
	disassembler, err := newDisassembler(dasmArch, dasmSyntax)
	if err != nil {
		return err
	}

	code, err := readDasmInput(args)
	if err != nil {
		return err
	}

	printVerbose("Decoding %d bytes for %s\n", len(code), dasmArch)

	output := bytes.NewBuffer(nil)
	var writer instWriter

	switch {
	case jsonOut:
		writer = &jsonInstWriter{}
	case dasmOutput == prettyFormat:
		writer = &disassWriter{
			w: output,
		}
	case dasmOutput == goFormat:
		writer = &goByteSliceWriter{
			w: output,
		}
	default:
		return fmt.Errorf("unsupported output format: %q", dasmOutput)
	}

	err = disassembler.All(code, dasmAddr, func(inst asmkit.Inst) error {
		return writer.Write(inst)
	})
	if err != nil {
		return fmt.Errorf("failed to decode instructions for %q - %w", dasmArch, err)
	}

	err = writer.Flush()
	if err != nil {
		return fmt.Errorf("failed to write remaining data to output - %w", err)
	}

	if jsonOut {
		return printJSON(writer.(*jsonInstWriter).insts)
	}

	printInfo("%s", output.String())

	return nil
}

func newDisassembler(platform string, syntax string) (*asmkit.Disassembler, error) {
	config := asmkit.DisassemblerConfig{
		Syntax: asmkit.DisassemblySyntax(syntax),
	}

	switch platform {
	case armPlatform:
		config.ArchConfig = asmkit.ARMConfig{Mode: armasm.ModeARM}
	case x86_32Platform, x86_64Platform:
		bits := 32
		if platform == x86_64Platform {
			bits = 64
		}

		config.ArchConfig = asmkit.X86Config{Bits: bits}
	default:
		return nil, fmt.Errorf("unsupported platform: '%s'", platform)
	}

	disassembler, err := asmkit.NewDisassembler(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create new decoder - %w", err)
	}

	return disassembler, nil
}

func readDasmInput(args []string) ([]byte, error) {
	if len(args) > 0 {
		code, err := conv.HexStringToBytes(strings.Join(args, " "))
		if err != nil {
			return nil, fmt.Errorf("failed to parse hex arguments - %w", err)
		}
		return code, nil
	}

	var code []byte
	var err error

	switch dasmInput {
	case b64Format:
		code, err = io.ReadAll(base64.NewDecoder(base64.StdEncoding, os.Stdin))
	case hexFormat:
		code, err = conv.HexArrayToBytes(os.Stdin)
	case rawFormat:
		code, err = io.ReadAll(os.Stdin)
	default:
		err = fmt.Errorf("unknown input format: %q", dasmInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q instructions - %w", dasmInput, err)
	}

	return code, nil
}

type instWriter interface {
	Write(asmkit.Inst) error
	Flush() error
}

var _ instWriter = (*disassWriter)(nil)

type disassWriter struct {
	w io.Writer
}

func (o *disassWriter) Write(inst asmkit.Inst) error {
	_, err := fmt.Fprintf(o.w, "0x%08x  %-20x  %s\n", inst.Addr, inst.Bin, inst.Dis)
	return err
}

func (o *disassWriter) Flush() error {
	return nil
}

var _ instWriter = (*jsonInstWriter)(nil)

type jsonInstWriter struct {
	insts []dasmInst
}

func (o *jsonInstWriter) Write(inst asmkit.Inst) error {
	o.insts = append(o.insts, dasmInst{
		Address:     fmt.Sprintf("0x%x", inst.Addr),
		Bytes:       fmt.Sprintf("%x", inst.Bin),
		Disassembly: inst.Dis,
	})

	return nil
}

func (o *jsonInstWriter) Flush() error {
	return nil
}

var _ instWriter = (*goByteSliceWriter)(nil)

type goByteSliceWriter struct {
	isInit bool
	w      io.Writer
}

func (o *goByteSliceWriter) Write(inst asmkit.Inst) error {
	if !o.isInit {
		o.isInit = true

		_, err := o.w.Write([]byte("[]byte{\n"))
		if err != nil {
			return err
		}
	}

	_, err := o.w.Write([]byte{'\t'})
	if err != nil {
		return err
	}

	for _, b := range inst.Bin {
		_, err = fmt.Fprintf(o.w, "0x%02x, ", b)
		if err != nil {
			return err
		}
	}

	_, err = o.w.Write([]byte("// " + inst.Dis + "\n"))
	if err != nil {
		return err
	}

	return nil
}

func (o *goByteSliceWriter) Flush() error {
	if !o.isInit {
		return nil
	}

	_, err := o.w.Write([]byte{'}', '\n'})
	return err
}
