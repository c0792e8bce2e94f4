package pattern_test

import (
	"errors"
	"fmt"
	"log"

	"gitlab.com/stephen-fox/sigkit/memory"
	"gitlab.com/stephen-fox/sigkit/pattern"
)

func ExampleCompile() {
	p := pattern.Compile("48 8B ?? ?? E8")

	fmt.Printf("bytes: % x\n", p.Bytes())
	fmt.Printf("mask:  % x\n", p.Mask())
	fmt.Println(p)

	// Output:
	// bytes: 48 8b 00 00 e8
	// mask:  ff ff 00 00 ff
	// 48 8B ? ? E8
}

func ExampleSearch_Count() {
	sim := memory.NewSimulated(memory.SimulatedConfig{})
	err := sim.Map(0x400000, []byte{0x90, 0xc3, 0x90, 0xc3, 0x90, 0xc3}, memory.ProtRead)
	if err != nil {
		log.Fatalln(err)
	}

	ctx := pattern.NewContextOrExit(pattern.ContextConfig{
		Space: sim,
		OptDefaultSegments: func() ([]memory.Range, error) {
			return []memory.Range{{Start: 0x400000, End: 0x400006}}, nil
		},
	})

	// Try the signature of one build, then fall back to another.
	_, err = ctx.Find("90 C3").Count(2)
	var countErr *pattern.CountError
	if errors.As(err, &countErr) {
		fmt.Println(countErr)

		search := ctx.Find("C3 90").CountOrExit(2)
		fmt.Printf("0x%x\n", search.GetOrExit(1))
	}

	// Output:
	// pattern '90 C3': expected 2 matches - got at least 3
	// 0x400003
}
