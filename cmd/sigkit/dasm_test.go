package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDasmCommand(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:  "x86_32 pretty",
			setup: func() { dasmArch = x86_32Platform },
			args:  []string{"31c04089c3cd80"},
			wantContain: []string{
				"xor eax, eax",
				"inc eax",
				"mov ebx, eax",
				"int 0x80",
			},
		},
		{
			name:        "relative call uses address",
			setup:       func() { dasmAddr = 0x140002000 },
			args:        []string{"E8 FB EF FF FF"},
			wantContain: []string{"0x140002000", "call 0x140001000"},
		},
		{
			name:        "go output",
			setup:       func() { dasmOutput = goFormat },
			args:        []string{`"\x90\xc3"`},
			wantContain: []string{"[]byte{", "0x90, // nop", "0xc3, // ret", "}"},
		},
		{
			name:    "unknown platform",
			setup:   func() { dasmArch = "mips" },
			args:    []string{"90"},
			wantErr: true,
		},
		{
			name:    "unknown output",
			setup:   func() { dasmOutput = "yaml" },
			args:    []string{"90"},
			wantErr: true,
		},
		{
			name:    "odd hex",
			args:    []string{"909"},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resetFlags(t)
			if test.setup != nil {
				test.setup()
			}

			output, err := captureOutput(t, func() error {
				return runDasm(test.args)
			})

			if test.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			for _, s := range test.wantContain {
				assert.Contains(t, output, s)
			}
		})
	}
}

func TestDasmCommand_JSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true
	dasmAddr = 0x1000

	output, err := captureOutput(t, func() error {
		return runDasm([]string{"90", "c3"})
	})
	require.NoError(t, err)

	var insts []dasmInst
	decodeJSON(t, output, &insts)

	require.Len(t, insts, 2)
	assert.Equal(t, dasmInst{Address: "0x1001", Bytes: "c3", Disassembly: "ret"}, insts[1])
}
