package memory

import "fmt"

func ExampleFieldLayout() {
	layout := NewFieldLayout("1.0").
		AddFieldInContext("health", 0x40, "1.0").
		AddFieldInContext("health", 0x48, "1.1")

	offset := layout.OffsetOrExit("health")
	fmt.Printf("1.0 health: 0x%x\n", offset)

	layout.SetContext("1.1")

	offset = layout.OffsetOrExit("health")
	fmt.Printf("1.1 health: 0x%x\n", offset)

	// Output:
	// 1.0 health: 0x40
	// 1.1 health: 0x48
}

func ExampleFieldLayout_Bind() {
	layout := NewFieldLayout("1.1").
		AddFieldInContext("health", 0x48, "1.1").
		MarkAbsentInContext("shield", "1.1")

	player := layout.Bind(0x1000)

	fmt.Printf("health: 0x%x\n", player.FieldOrExit("health"))
	fmt.Println("has shield:", player.Has("shield"))

	// Output:
	// health: 0x1048
	// has shield: false
}
