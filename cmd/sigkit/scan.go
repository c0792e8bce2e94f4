package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gitlab.com/stephen-fox/sigkit/asmkit"
	"gitlab.com/stephen-fox/sigkit/memory"
	"gitlab.com/stephen-fox/sigkit/pattern"
	"gitlab.com/stephen-fox/sigkit/peimage"
)

var (
	scanCount   int
	scanStrict  bool
	scanMax     int
	scanHints   []string
	scanDis     int
	scanSection string
	scanCode    bool
)

func init() {
	cmd := newScanCmd()
	cmd.Flags().IntVar(&scanCount, "count", 0, "Require exactly this many matches (0 = any)")
	cmd.Flags().BoolVar(&scanStrict, "strict", false, "Exit immediately on a count mismatch")
	cmd.Flags().IntVar(&scanMax, "max", 0, "Stop after this many matches (0 = unlimited)")
	cmd.Flags().StringArrayVar(&scanHints, "hint", nil,
		"Seed the hint cache with HASH=ADDR (repeatable)")
	cmd.Flags().IntVar(&scanDis, "dis", 0, "Disassemble this many instructions at each match")
	cmd.Flags().StringVar(&scanSection, "section", "", "Scan only the named section")
	cmd.Flags().BoolVar(&scanCode, "code", false, "Scan only code sections")
	rootCmd.AddCommand(cmd)
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <pe-file> <signature>...",
		Short: "Scan a PE image file for signatures",
		Long: `The scan command maps a PE image file at its preferred base and
searches its readable sections for each signature.

Example:
  sigkit scan game.exe "E8 ? ? ? ? 48 8B 05"
  sigkit scan game.exe "48 89 5C 24 ?" --code --count 1 --dis 4
  sigkit scan game.exe "C3 CC CC" --section .text --max 10 --json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(args)
		},
	}
	return cmd
}

type scanResult struct {
	Signature string      `json:"signature"`
	Hash      string      `json:"hash"`
	Matches   []scanMatch `json:"matches"`
	Error     string      `json:"error,omitempty"`
}

type scanMatch struct {
	Address     string   `json:"address"`
	RVA         string   `json:"rva"`
	Section     string   `json:"section,omitempty"`
	Disassembly []string `json:"disassembly,omitempty"`
}

func runScan(args []string) error {
	imagePath := args[0]
	signatures := args[1:]

	if scanSection != "" && scanCode {
		return fmt.Errorf("--section and --code cannot be used together")
	}

	printVerbose("Loading image: %s\n", imagePath)

	sim := memory.NewSimulated(memory.SimulatedConfig{})

	image, err := peimage.LoadFile(imagePath, sim)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}

	printVerbose("Mapped at 0x%x, %d sections\n", image.Base, len(image.Sections))

	segments, err := scanSegments(image)
	if err != nil {
		return err
	}

	hints, err := parseHints(scanHints)
	if err != nil {
		return err
	}

	ctx, err := pattern.NewContext(pattern.ContextConfig{
		Space: sim,
		OptDefaultSegments: func() ([]memory.Range, error) {
			return segments, nil
		},
		OptHints:  hints,
		OptLogger: verboseLogger(),
	})
	if err != nil {
		return err
	}

	var disassembler *asmkit.Disassembler
	if scanDis > 0 {
		platform := x86_64Platform
		if image.PointerSize == 4 {
			platform = x86_32Platform
		}

		disassembler, err = newDisassembler(platform, string(asmkit.IntelSyntax))
		if err != nil {
			return err
		}
	}

	policy := pattern.Recoverable
	if scanStrict {
		policy = pattern.Strict
	}

	var results []scanResult
	failed := 0

	for _, signature := range signatures {
		result := scanResult{
			Signature: signature,
			Hash:      fmt.Sprintf("0x%016x", pattern.Hash(signature)),
			Matches:   make([]scanMatch, 0),
		}

		matches, err := findMatches(ctx.Find(signature), policy)
		if err != nil {
			failed++
			result.Error = err.Error()
		}

		for _, m := range matches {
			match := scanMatch{
				Address: fmt.Sprintf("0x%x", uintptr(m)),
				RVA:     fmt.Sprintf("0x%x", uintptr(m)-image.Base),
				Section: sectionOf(image, uintptr(m)),
			}

			if disassembler != nil {
				match.Disassembly = disassembleAt(disassembler, sim, image, uintptr(m), scanDis)
			}

			result.Matches = append(result.Matches, match)
		}

		results = append(results, result)
	}

	if jsonOut {
		err = printJSON(results)
		if err != nil {
			return err
		}
	} else {
		printScanResults(results)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d signatures failed", failed, len(signatures))
	}

	return nil
}

func findMatches(search *pattern.Search, policy pattern.CountPolicy) ([]pattern.Match, error) {
	switch {
	case scanCount > 0:
		_, err := search.Expect(scanCount, policy)
		return search.Found(), err
	case scanMax > 0:
		_, err := search.CountHint(scanMax)
		return search.Found(), err
	default:
		return search.Matches()
	}
}

func scanSegments(image *peimage.Image) ([]memory.Range, error) {
	switch {
	case scanSection != "":
		segments, ok := image.SectionByName(scanSection)
		if !ok {
			return nil, fmt.Errorf("image has no section named %q", scanSection)
		}
		return segments, nil
	case scanCode:
		return image.CodeSegments(), nil
	default:
		return image.ReadableSegments(), nil
	}
}

// parseHints parses HASH=ADDR pairs. Both numbers may be decimal or
// prefixed with 0x.
func parseHints(pairs []string) (*pattern.HintCache, error) {
	hints := pattern.NewHintCache()

	for _, pair := range pairs {
		hashStr, addrStr, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("hint %q is not in HASH=ADDR format", pair)
		}

		hash, err := strconv.ParseUint(hashStr, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hint hash %q - %w", hashStr, err)
		}

		addr, err := strconv.ParseUint(addrStr, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hint address %q - %w", addrStr, err)
		}

		hints.Hint(hash, uintptr(addr))
	}

	return hints, nil
}

func sectionOf(image *peimage.Image, addr uintptr) string {
	for _, section := range image.Sections {
		if section.Range(image.Base).Contains(addr, 1) {
			return section.Name
		}
	}

	return ""
}

func disassembleAt(d *asmkit.Disassembler, space memory.Space, image *peimage.Image, addr uintptr, n int) []string {
	end := image.Range().End
	size := uintptr(n * 15)
	if addr+size > end {
		size = end - addr
	}

	code, err := space.Bytes(addr, int(size))
	if err != nil {
		return []string{err.Error()}
	}

	insts, err := d.Take(code, uint64(addr), n)

	var lines []string
	for _, inst := range insts {
		lines = append(lines, inst.Dis)
	}

	if err != nil {
		lines = append(lines, "("+err.Error()+")")
	}

	return lines
}

func printScanResults(results []scanResult) {
	for _, result := range results {
		printInfo("%s  (hash %s)\n", result.Signature, result.Hash)

		if result.Error != "" {
			printInfo("  error: %s\n", result.Error)
		}

		if len(result.Matches) == 0 {
			printInfo("  no matches\n")
		}

		for _, match := range result.Matches {
			printInfo("  %s  rva %s  %s\n", match.Address, match.RVA, match.Section)

			for _, line := range match.Disassembly {
				printInfo("      %s\n", line)
			}
		}
	}
}
