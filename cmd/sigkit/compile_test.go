package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/stephen-fox/sigkit/pattern"
)

func TestCompileCommand(t *testing.T) {
	resetFlags(t)

	output, err := captureOutput(t, func() error {
		return runCompile([]string{"E8 ?? ? ? ? 48 8B"})
	})
	require.NoError(t, err)

	assert.Contains(t, output, "pattern:    E8 ? ? ? ? 48 8B")
	assert.Contains(t, output, "bytes:      e800000000488b")
	assert.Contains(t, output, "mask:       ff00000000ffff")
	assert.Contains(t, output, "code mask:  x????xx")
	assert.Contains(t, output, fmt.Sprintf("hash:       0x%016x", pattern.Hash("E8 ?? ? ? ? 48 8B")))
}

func TestCompileCommand_CodeStyle(t *testing.T) {
	resetFlags(t)
	jsonOut = true
	compileCodeMask = "xx??x"

	output, err := captureOutput(t, func() error {
		return runCompile([]string{`\x48\x8B\x00\x00\xC3`})
	})
	require.NoError(t, err)

	var result compileResult
	decodeJSON(t, output, &result)

	assert.Equal(t, "48 8B ? ? C3", result.Pattern)
	assert.Equal(t, 5, result.Length)
	assert.Equal(t, "xx??x", result.CodeMask)
}

func TestCompileCommand_Errors(t *testing.T) {
	resetFlags(t)
	_, err := captureOutput(t, func() error {
		return runCompile([]string{"zz"})
	})
	assert.ErrorIs(t, err, pattern.ErrEmptyPattern)

	resetFlags(t)
	compileCodeMask = "xx"
	_, err = captureOutput(t, func() error {
		return runCompile([]string{`\x48`})
	})
	assert.Error(t, err)
}
