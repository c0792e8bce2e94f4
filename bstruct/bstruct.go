// Package bstruct encodes structs as packed binary data.
package bstruct

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"reflect"
)

var (
	// DefaultExitFn is invoked by functions and methods ending in
	// the "OrExit" suffix when an error occurs.
	DefaultExitFn = func(err error) {
		log.Fatalln(err)
	}
)

// Byter encodes itself.
type Byter interface {
	ToBytes(binary.ByteOrder) []byte
}

// FieldInfo describes one encoded top-level field.
type FieldInfo struct {
	Index int
	Name  string
	Type  string
	Value []byte
}

func StructToBytesOrExit(s interface{}, bo binary.ByteOrder, optFn func(FieldInfo) error) []byte {
	b, err := StructToBytes(s, bo, optFn)
	if err != nil {
		DefaultExitFn(err)
	}

	return b
}

// StructToBytes encodes the fields of s in declaration order with no
// padding. Fields may be unsigned integers, arrays, nested structs or
// Byter implementations. optFn, if non-nil, is called after each
// top-level field is encoded.
func StructToBytes(s interface{}, bo binary.ByteOrder, optFn func(FieldInfo) error) ([]byte, error) {
	if s == nil {
		return nil, errors.New("struct is nil")
	}

	structValue := reflect.ValueOf(s)
	if structValue.Kind() == reflect.Ptr {
		structValue = structValue.Elem()
	}

	if structValue.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected a struct - got %T", s)
	}

	numFields := structValue.NumField()

	structType := structValue.Type()

	var b []byte

	for i := 0; i < numFields; i++ {
		field := structType.Field(i)

		at := len(b)

		var err error
		b, err = appendValue(b, structValue.Field(i), bo)
		if err != nil {
			return nil, fmt.Errorf("field %q (index %d) - %w", field.Name, i, err)
		}

		if optFn != nil {
			err := optFn(FieldInfo{
				Index: i,
				Name:  field.Name,
				Type:  field.Type.String(),
				Value: b[at:],
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return b, nil
}

func appendValue(b []byte, v reflect.Value, bo binary.ByteOrder) ([]byte, error) {
	if v.CanInterface() {
		byter, ok := v.Interface().(Byter)
		if ok {
			return append(b, byter.ToBytes(bo)...), nil
		}
	}

	switch v.Kind() {
	case reflect.Uint8:
		b = append(b, uint8(v.Uint()))
	case reflect.Uint16:
		b = append(b, make([]byte, 2)...)
		bo.PutUint16(b[len(b)-2:], uint16(v.Uint()))
	case reflect.Uint32:
		b = append(b, make([]byte, 4)...)
		bo.PutUint32(b[len(b)-4:], uint32(v.Uint()))
	case reflect.Uint64:
		b = append(b, make([]byte, 8)...)
		bo.PutUint64(b[len(b)-8:], v.Uint())
	case reflect.Array:
		var err error
		for i := 0; i < v.Len(); i++ {
			b, err = appendValue(b, v.Index(i), bo)
			if err != nil {
				return nil, err
			}
		}
	case reflect.Struct:
		var err error
		for i := 0; i < v.NumField(); i++ {
			b, err = appendValue(b, v.Field(i), bo)
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unsupported data type %s", v.Type())
	}

	return b, nil
}
