package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/stephen-fox/sigkit/internal/petest"
	"gitlab.com/stephen-fox/sigkit/peimage"
)

const testImageBase = 0x140000000

// writeTestImage writes a PE image with a .text section holding two
// calls followed by a ret, and an .rdata section holding a string.
func writeTestImage(t *testing.T) string {
	t.Helper()

	text := make([]byte, 0x100)
	for i := range text {
		text[i] = 0xcc
	}
	copy(text[0x10:], []byte{0xe8, 0xeb, 0x0f, 0x00, 0x00, 0x48, 0x8b, 0x05, 0x00, 0x00, 0x00, 0x00})
	copy(text[0x40:], []byte{0xe8, 0xbb, 0x0f, 0x00, 0x00, 0x48, 0x8b, 0x05, 0x00, 0x00, 0x00, 0x00})
	copy(text[0x80:], []byte{0xc3})

	rdata := append([]byte("sigkit test string"), 0)

	raw := petest.Build(testImageBase, []petest.Section{
		{
			Name:            ".text",
			VirtualAddress:  0x1000,
			Characteristics: peimage.ScnCntCode | peimage.ScnMemExecute | peimage.ScnMemRead,
			Data:            text,
		},
		{
			Name:            ".rdata",
			VirtualAddress:  0x2000,
			Characteristics: peimage.ScnCntInitializedData | peimage.ScnMemRead,
			Data:            rdata,
		},
	})

	filePath := filepath.Join(t.TempDir(), "test.exe")
	if err := os.WriteFile(filePath, raw, 0o600); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}

	return filePath
}

// resetFlags restores every command flag to its default value.
func resetFlags(t *testing.T) {
	t.Helper()

	verbose, quiet, jsonOut = false, false, false

	scanCount, scanStrict, scanMax = 0, false, 0
	scanHints = nil
	scanDis = 0
	scanSection, scanCode = "", false

	compileCodeMask = ""

	dasmArch = x86_64Platform
	dasmSyntax = "intel"
	dasmInput = hexFormat
	dasmOutput = prettyFormat
	dasmAddr = 0

	t.Cleanup(func() {
		verbose, quiet, jsonOut = false, false, false
	})
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	origStdout := os.Stdout

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	os.Stdout = w

	fnErr := fn()

	w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// decodeJSON unmarshals output into v
func decodeJSON(t *testing.T, output string, v interface{}) {
	t.Helper()

	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, output)
	}
}
