package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gitlab.com/stephen-fox/sigkit/conv"
	"gitlab.com/stephen-fox/sigkit/pattern"
)

var compileCodeMask string

func init() {
	cmd := newCompileCmd()
	cmd.Flags().StringVar(&compileCodeMask, "code", "",
		`Treat the argument as code-style bytes with this mask, e.g. "xx????x"`)
	rootCmd.AddCommand(cmd)
}

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <signature>",
		Short: "Compile a signature and print its bytes, mask and hint hash",
		Long: `The compile command parses a signature and prints the resulting
pattern in IDA and code style, along with the hash used as its hint
cache key.

Example:
  sigkit compile "E8 ? ? ? ? 48 8B 05"
  sigkit compile --code "xx????x" "\x48\x8B\x00\x00\x00\x00\xC3"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(args)
		},
	}
	return cmd
}

type compileResult struct {
	Pattern   string `json:"pattern"`
	Bytes     string `json:"bytes"`
	Mask      string `json:"mask"`
	CodeBytes string `json:"code_bytes"`
	CodeMask  string `json:"code_mask"`
	Length    int    `json:"length"`
	Hash      string `json:"hash"`
}

func runCompile(args []string) error {
	var p pattern.Pattern

	if compileCodeMask != "" {
		b, err := conv.HexStringToBytes(args[0])
		if err != nil {
			return fmt.Errorf("failed to parse code-style bytes - %w", err)
		}

		p, err = pattern.FromCodeStyle(b, compileCodeMask)
		if err != nil {
			return err
		}
	} else {
		p = pattern.Compile(args[0])
	}

	if p.Len() == 0 {
		return pattern.ErrEmptyPattern
	}

	codeBytes, codeMask := p.CodeStyle()

	result := compileResult{
		Pattern:   p.String(),
		Bytes:     fmt.Sprintf("%x", p.Bytes()),
		Mask:      fmt.Sprintf("%x", p.Mask()),
		CodeBytes: codeBytes,
		CodeMask:  codeMask,
		Length:    p.Len(),
		Hash:      fmt.Sprintf("0x%016x", p.Hash()),
	}

	if jsonOut {
		return printJSON(result)
	}

	printInfo("pattern:    %s\n", result.Pattern)
	printInfo("bytes:      %s\n", result.Bytes)
	printInfo("mask:       %s\n", result.Mask)
	printInfo("code bytes: %s\n", result.CodeBytes)
	printInfo("code mask:  %s\n", result.CodeMask)
	printInfo("length:     %d\n", result.Length)
	printInfo("hash:       %s\n", result.Hash)

	return nil
}
