package command

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire format (version 1):
//
//	[version:1][kind:1][keyLen:uvarint][key][valueLen:uvarint][value]
//
// valueLen and value are only present for KindSet.
const (
	// FormatVersion is the current encoding version
	FormatVersion = 1
)

// ErrDecode is returned for any byte sequence that is not a valid command
var ErrDecode = errors.New("command: decode failed")

// Encode serializes a command
func Encode(c Command) ([]byte, error) {
	return AppendEncode(nil, c)
}

// AppendEncode appends the encoding of c to dst and returns the extended slice
func AppendEncode(dst []byte, c Command) ([]byte, error) {
	switch c.kind {
	case KindSet:
		dst = append(dst, FormatVersion, byte(KindSet))
		dst = binary.AppendUvarint(dst, uint64(len(c.key)))
		dst = append(dst, c.key...)
		dst = binary.AppendUvarint(dst, uint64(len(c.value)))
		dst = append(dst, c.value...)
	case KindRemove:
		dst = append(dst, FormatVersion, byte(KindRemove))
		dst = binary.AppendUvarint(dst, uint64(len(c.key)))
		dst = append(dst, c.key...)
	default:
		return dst, fmt.Errorf("command: cannot encode kind %s", c.kind)
	}
	return dst, nil
}

// Decode parses exactly one command from data. Trailing bytes are rejected.
func Decode(data []byte) (Command, error) {
	if len(data) < 2 {
		return Command{}, fmt.Errorf("%w: record too short (%d bytes)", ErrDecode, len(data))
	}
	if data[0] != FormatVersion {
		return Command{}, fmt.Errorf("%w: unsupported version %d", ErrDecode, data[0])
	}

	kind := Kind(data[1])
	rest := data[2:]

	key, rest, err := readString(rest, "key")
	if err != nil {
		return Command{}, err
	}

	var c Command
	switch kind {
	case KindSet:
		value, tail, err := readString(rest, "value")
		if err != nil {
			return Command{}, err
		}
		rest = tail
		c = Set(key, value)
	case KindRemove:
		c = Remove(key)
	default:
		return Command{}, fmt.Errorf("%w: unknown kind %d", ErrDecode, uint8(kind))
	}

	if len(rest) != 0 {
		return Command{}, fmt.Errorf("%w: %d trailing bytes after %s", ErrDecode, len(rest), kind)
	}
	return c, nil
}

// readString reads a uvarint length followed by that many bytes
func readString(buf []byte, field string) (string, []byte, error) {
	n, size := binary.Uvarint(buf)
	if size <= 0 {
		return "", nil, fmt.Errorf("%w: bad %s length", ErrDecode, field)
	}
	buf = buf[size:]
	if n > uint64(len(buf)) {
		return "", nil, fmt.Errorf("%w: %s length %d exceeds remaining %d bytes", ErrDecode, field, n, len(buf))
	}
	return string(buf[:n]), buf[n:], nil
}
