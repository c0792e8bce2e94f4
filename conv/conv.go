// Package conv converts hex-encoded text into bytes.
package conv

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// HexStringToBytes is HexArrayToBytes for a string.
func HexStringToBytes(s string) ([]byte, error) {
	return HexArrayToBytes(strings.NewReader(s))
}

// HexArrayToBytes decodes the hex digits read from source. C comments,
// "\x" and "0x" prefixes, separators and quotes are ignored, which
// allows it to parse a C array, a code-style string such as "\x48\x8b"
// or plain hex pairs from the command line.
//
// An odd number of hex digits is an error.
func HexArrayToBytes(source io.Reader) ([]byte, error) {
	d := hexDecoder{
		src: bufio.NewReader(source),
	}

	return d.decode()
}

type hexDecoder struct {
	src        *bufio.Reader
	out        []byte
	high       byte
	highChar   byte
	haveNibble bool
}

func (o *hexDecoder) decode() ([]byte, error) {
	for {
		b, err := o.src.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read hex data - %w", err)
		}

		switch {
		case b == '/':
			err = o.skipComment()
			if err != nil {
				return nil, err
			}
		case b == '0' && !o.haveNibble && o.peekX():
			_, _ = o.src.ReadByte()
		default:
			o.digit(b)
		}
	}

	if o.haveNibble {
		return nil, fmt.Errorf("odd number of hex characters - trailing '%c'", o.highChar)
	}

	return o.out, nil
}

func (o *hexDecoder) peekX() bool {
	next, err := o.src.Peek(1)
	return err == nil && (next[0] == 'x' || next[0] == 'X')
}

func (o *hexDecoder) digit(c byte) {
	var v byte
	switch {
	case c >= '0' && c <= '9':
		v = c - '0'
	case c >= 'a' && c <= 'f':
		v = c - 'a' + 10
	case c >= 'A' && c <= 'F':
		v = c - 'A' + 10
	default:
		return
	}

	if !o.haveNibble {
		o.high = v
		o.highChar = c
		o.haveNibble = true
		return
	}

	o.out = append(o.out, o.high<<4|v)
	o.haveNibble = false
}

// skipComment consumes a C comment. The leading '/' was already read.
func (o *hexDecoder) skipComment() error {
	kind, err := o.src.ReadByte()
	if err != nil {
		return fmt.Errorf("failed to read second start of comment char - %w", err)
	}

	switch kind {
	case '/':
		_, err := o.src.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read line comment - %w", err)
		}

		return nil
	case '*':
		var prev byte
		for {
			b, err := o.src.ReadByte()
			if err != nil {
				return fmt.Errorf("failed to find corresponding '*/' end of comment - %w", err)
			}

			if prev == '*' && b == '/' {
				return nil
			}

			prev = b
		}
	default:
		return fmt.Errorf("unknown second start of comment char '%c'", kind)
	}
}
