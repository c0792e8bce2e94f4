package hook_test

import (
	"fmt"
	"log"

	"gitlab.com/stephen-fox/sigkit/hook"
	"gitlab.com/stephen-fox/sigkit/memory"
)

func ExampleInstaller_InterceptCall() {
	sim := memory.NewSimulated(memory.SimulatedConfig{})

	// call 0x140001000
	code := []byte{0xe8, 0xfb, 0x0f, 0x00, 0x00}

	err := sim.Map(0x140000000, code, memory.ProtRead|memory.ProtExec)
	if err != nil {
		log.Fatalln(err)
	}

	installer := hook.NewOrExit(hook.Config{
		Space: sim,
		VM:    sim,
	})

	old := installer.InterceptCallOrExit(0x140000000, 0x140002000)

	target := installer.ReadCallFromOrExit(0x140000000, 0)

	fmt.Printf("old: 0x%x\nnew: 0x%x\n", old, target)

	// Output:
	// old: 0x140001000
	// new: 0x140002000
}
