package pattern

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyPattern is returned when searching for a pattern
	// that contains no bytes.
	ErrEmptyPattern = errors.New("pattern is empty")
)

// Pattern is a compiled signature. A mask byte of 0xFF requires an
// exact match, 0x00 matches anything. Other mask values select the
// bits that must match.
//
// Bytes are stored pre-masked, so the bytes at a position match when
// data&mask == Bytes()[i].
type Pattern struct {
	bytes  []byte
	mask   []byte
	hash   uint64
	source string
}

// Compile parses an IDA-style signature. Hex digits are accumulated
// in pairs into exact bytes, and each run of '?' characters is one
// wildcard byte. Every other character is skipped, so malformed input
// yields a shorter pattern rather than an error.
//
// A signature with no bytes compiles successfully. Searching for
// it fails with ErrEmptyPattern.
func Compile(signature string) Pattern {
	p := Pattern{
		hash:   Hash(signature),
		source: signature,
	}

	var digit byte
	haveDigit := false
	inWildcard := false

	for i := 0; i < len(signature); i++ {
		c := signature[i]

		if c == '?' {
			if !inWildcard {
				p.bytes = append(p.bytes, 0)
				p.mask = append(p.mask, 0)
				inWildcard = true
			}
			continue
		}

		inWildcard = false

		v, ok := hexNibble(c)
		if !ok {
			continue
		}

		if !haveDigit {
			digit = v << 4
			haveDigit = true
			continue
		}

		p.bytes = append(p.bytes, digit|v)
		p.mask = append(p.mask, 0xFF)
		haveDigit = false
	}

	return p
}

// FromBytes creates a Pattern from parallel byte and mask arrays.
func FromBytes(b []byte, mask []byte) (Pattern, error) {
	if len(b) != len(mask) {
		return Pattern{}, fmt.Errorf("bytes and mask lengths differ (%d and %d)",
			len(b), len(mask))
	}

	if len(b) == 0 {
		return Pattern{}, ErrEmptyPattern
	}

	p := Pattern{
		bytes: make([]byte, len(b)),
		mask:  append([]byte(nil), mask...),
	}

	for i := range b {
		p.bytes[i] = b[i] & mask[i]
	}

	p.hash = hashBytesAndMask(p.bytes, p.mask)

	return p, nil
}

func FromBytesOrExit(b []byte, mask []byte) Pattern {
	p, err := FromBytes(b, mask)
	if err != nil {
		DefaultExitFn(fmt.Errorf("failed to create pattern from bytes - %w", err))
	}
	return p
}

// FromCodeStyle creates a Pattern from code-style notation: the raw
// bytes plus a mask string where 'x' marks an exact byte and '?'
// a wildcard, e.g. "\x48\x8B\x05" with "xx?".
func FromCodeStyle(b []byte, mask string) (Pattern, error) {
	if len(b) != len(mask) {
		return Pattern{}, fmt.Errorf("bytes and mask lengths differ (%d and %d)",
			len(b), len(mask))
	}

	m := make([]byte, len(mask))
	for i := 0; i < len(mask); i++ {
		switch mask[i] {
		case 'x', 'X':
			m[i] = 0xFF
		case '?', '.':
			m[i] = 0
		default:
			return Pattern{}, fmt.Errorf("unknown mask character %q at index %d", mask[i], i)
		}
	}

	return FromBytes(b, m)
}

// Len returns the number of bytes in the pattern.
func (o Pattern) Len() int {
	return len(o.bytes)
}

// Bytes returns the masked pattern bytes. The caller must not
// modify the returned slice.
func (o Pattern) Bytes() []byte {
	return o.bytes
}

// Mask returns the mask. The caller must not modify the returned slice.
func (o Pattern) Mask() []byte {
	return o.mask
}

// Hash returns the hint cache key for the pattern.
func (o Pattern) Hash() uint64 {
	return o.hash
}

// Source returns the signature the pattern was compiled from, if any.
func (o Pattern) Source() string {
	return o.source
}

// MatchAt returns true if b starts with bytes that satisfy the pattern.
func (o Pattern) MatchAt(b []byte) bool {
	if len(b) < len(o.bytes) {
		return false
	}

	for i := range o.bytes {
		if o.bytes[i] != b[i]&o.mask[i] {
			return false
		}
	}

	return true
}

// String returns the pattern in IDA style. Any byte that is not
// matched exactly is written as "?".
func (o Pattern) String() string {
	var sb strings.Builder
	for i := range o.bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}

		if o.mask[i] != 0xFF {
			sb.WriteByte('?')
			continue
		}

		fmt.Fprintf(&sb, "%02X", o.bytes[i])
	}

	return sb.String()
}

// CodeStyle returns the pattern in code-style notation, for example
// `\x48\x8B\x00` and "xx?".
func (o Pattern) CodeStyle() (string, string) {
	var b strings.Builder
	var m strings.Builder
	for i := range o.bytes {
		fmt.Fprintf(&b, `\x%02X`, o.bytes[i])

		if o.mask[i] == 0xFF {
			m.WriteByte('x')
		} else {
			m.WriteByte('?')
		}
	}

	return b.String(), m.String()
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	default:
		return 0, false
	}
}
