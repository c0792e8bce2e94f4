package hook

import "fmt"

const (
	// Call writes a CALL rel32 instruction.
	Call Kind = iota

	// Jump writes a JMP rel32 instruction.
	Jump
)

const (
	callOpcode = 0xe8
	jumpOpcode = 0xe9

	// branchSize is the size of a CALL rel32 or JMP rel32.
	branchSize = 5
)

// Kind is the type of branch instruction written by a hook.
type Kind int

func (o Kind) String() string {
	switch o {
	case Call:
		return "call"
	case Jump:
		return "jump"
	default:
		return fmt.Sprintf("unknown (%d)", int(o))
	}
}

func (o Kind) opcode() (byte, error) {
	switch o {
	case Call:
		return callOpcode, nil
	case Jump:
		return jumpOpcode, nil
	default:
		return 0, fmt.Errorf("unsupported hook kind: %s", o)
	}
}
