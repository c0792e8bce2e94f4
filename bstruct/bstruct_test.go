package bstruct

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	A uint8
	B uint16
}

type beByter uint32

func (o beByter) ToBytes(binary.ByteOrder) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(o))
	return b
}

func TestStructToBytes_NestedAndArrays(t *testing.T) {
	type outer struct {
		Name  [4]uint8
		Pairs [2]pair
		Tail  uint64
		Raw   beByter
	}

	var fields []FieldInfo
	b, err := StructToBytes(&outer{
		Name:  [4]uint8{'a', 'b', 0, 0},
		Pairs: [2]pair{{A: 1, B: 0x0302}, {A: 4, B: 0x0605}},
		Tail:  0x0807,
		Raw:   0x0a0b0c0d,
	}, binary.LittleEndian, func(info FieldInfo) error {
		fields = append(fields, info)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []byte{
		'a', 'b', 0, 0,
		1, 2, 3, 4, 5, 6,
		7, 8, 0, 0, 0, 0, 0, 0,
		0x0a, 0x0b, 0x0c, 0x0d,
	}, b)

	require.Len(t, fields, 4)
	assert.Equal(t, "Pairs", fields[1].Name)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, fields[1].Value)
}

func TestStructToBytes_Unsupported(t *testing.T) {
	_, err := StructToBytes(struct{ S string }{S: "x"}, binary.LittleEndian, nil)
	assert.Error(t, err)

	_, err = StructToBytes(nil, binary.LittleEndian, nil)
	assert.Error(t, err)

	_, err = StructToBytes(5, binary.LittleEndian, nil)
	assert.Error(t, err)
}
