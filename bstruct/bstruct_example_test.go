package bstruct_test

import (
	"encoding/binary"
	"fmt"
	"log"

	"gitlab.com/stephen-fox/sigkit/bstruct"
)

func ExampleStructToBytes() {
	type example struct {
		Counter  uint16
		SomePtr  uint32
		Register uint32
	}

	b, err := bstruct.StructToBytes(example{
		Counter:  666,
		SomePtr:  0xc0ded00d,
		Register: 0xfabfabdd,
	}, binary.LittleEndian, nil)
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Printf("0x%x", b)

	// Output:
	// 0x9a020dd0dec0ddabbffa
}
