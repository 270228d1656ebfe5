package lsm

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/dd0wney/cluso-kv/pkg/command"
)

// appendChecksum appends the crc32 of buf to buf
func appendChecksum(buf []byte) []byte {
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// verifyChecksum strips and checks the trailing crc32 of a block
func verifyChecksum(block []byte, what string) ([]byte, error) {
	if len(block) < crcSize {
		return nil, fmt.Errorf("%w: %s block too short (%d bytes)", ErrCorruptSSTable, what, len(block))
	}
	body := block[:len(block)-crcSize]
	want := binary.LittleEndian.Uint32(block[len(block)-crcSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: %s checksum mismatch (got %08x, want %08x)", ErrCorruptSSTable, what, got, want)
	}
	return body, nil
}

// encodeSegment serializes a run of commands into one block
func encodeSegment(commands []command.Command) ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(commands)))
	var scratch []byte
	for _, c := range commands {
		var err error
		scratch, err = command.AppendEncode(scratch[:0], c)
		if err != nil {
			return nil, err
		}
		buf = binary.AppendUvarint(buf, uint64(len(scratch)))
		buf = append(buf, scratch...)
	}
	return appendChecksum(buf), nil
}

// decodeSegment parses a segment block back into its commands
func decodeSegment(block []byte) ([]command.Command, error) {
	body, err := verifyChecksum(block, "segment")
	if err != nil {
		return nil, err
	}

	count, n := binary.Uvarint(body)
	if n <= 0 || count > uint64(len(body)) {
		return nil, fmt.Errorf("%w: bad segment count", ErrCorruptSSTable)
	}
	body = body[n:]

	commands := make([]command.Command, 0, count)
	for i := uint64(0); i < count; i++ {
		size, n := binary.Uvarint(body)
		if n <= 0 || size > uint64(len(body)-n) {
			return nil, fmt.Errorf("%w: bad length for segment entry %d", ErrCorruptSSTable, i)
		}
		body = body[n:]

		c, err := command.Decode(body[:size])
		if err != nil {
			return nil, fmt.Errorf("%w: segment entry %d: %w", ErrCorruptSSTable, i, err)
		}
		commands = append(commands, c)
		body = body[size:]
	}

	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in segment", ErrCorruptSSTable, len(body))
	}
	return commands, nil
}

// encodeIndex serializes the sparse index
func encodeIndex(index []Position) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(index)))
	for _, p := range index {
		buf = binary.AppendUvarint(buf, uint64(len(p.Key)))
		buf = append(buf, p.Key...)
		buf = binary.LittleEndian.AppendUint64(buf, p.Offset)
		buf = binary.LittleEndian.AppendUint64(buf, p.Length)
	}
	return appendChecksum(buf)
}

// decodeIndex parses the sparse index and checks every position lies in
// the data section and that keys ascend
func decodeIndex(block []byte, footer Footer) ([]Position, error) {
	body, err := verifyChecksum(block, "index")
	if err != nil {
		return nil, err
	}

	count, n := binary.Uvarint(body)
	if n <= 0 || count > uint64(len(body)) {
		return nil, fmt.Errorf("%w: bad index count", ErrCorruptSSTable)
	}
	body = body[n:]

	dataEnd := footer.DataStart + footer.DataLen
	index := make([]Position, 0, count)
	for i := uint64(0); i < count; i++ {
		keyLen, n := binary.Uvarint(body)
		if n <= 0 || keyLen > uint64(len(body)-n) {
			return nil, fmt.Errorf("%w: bad key length for index entry %d", ErrCorruptSSTable, i)
		}
		body = body[n:]
		if uint64(len(body)) < keyLen+16 {
			return nil, fmt.Errorf("%w: truncated index entry %d", ErrCorruptSSTable, i)
		}

		p := Position{
			Key:    string(body[:keyLen]),
			Offset: binary.LittleEndian.Uint64(body[keyLen:]),
			Length: binary.LittleEndian.Uint64(body[keyLen+8:]),
		}
		body = body[keyLen+16:]

		if p.Offset < footer.DataStart || p.Length > dataEnd || p.Offset > dataEnd-p.Length {
			return nil, fmt.Errorf("%w: index entry %d points outside data section", ErrCorruptSSTable, i)
		}
		if len(index) > 0 && index[len(index)-1].Key >= p.Key {
			return nil, fmt.Errorf("%w: index keys out of order at entry %d", ErrCorruptSSTable, i)
		}
		index = append(index, p)
	}

	if len(body) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in index", ErrCorruptSSTable, len(body))
	}
	return index, nil
}

// encodeFooter serializes the fixed-size footer
func encodeFooter(f Footer) []byte {
	buf := make([]byte, 0, FooterSize)
	buf = binary.LittleEndian.AppendUint64(buf, f.DataStart)
	buf = binary.LittleEndian.AppendUint64(buf, f.DataLen)
	buf = binary.LittleEndian.AppendUint64(buf, f.IndexStart)
	buf = binary.LittleEndian.AppendUint64(buf, f.IndexLen)
	buf = binary.LittleEndian.AppendUint32(buf, f.SegmentSize)
	buf = binary.LittleEndian.AppendUint32(buf, f.Version)
	buf = binary.LittleEndian.AppendUint32(buf, SSTableMagic)
	return appendChecksum(buf)
}

// decodeFooter parses the footer and checks its sections fit in a file of
// fileSize bytes
func decodeFooter(buf []byte, fileSize int64) (Footer, error) {
	if len(buf) != FooterSize {
		return Footer{}, fmt.Errorf("%w: footer is %d bytes", ErrCorruptSSTable, len(buf))
	}
	body, err := verifyChecksum(buf, "footer")
	if err != nil {
		return Footer{}, err
	}

	if magic := binary.LittleEndian.Uint32(body[40:]); magic != SSTableMagic {
		return Footer{}, fmt.Errorf("%w: invalid magic %08x", ErrCorruptSSTable, magic)
	}

	f := Footer{
		DataStart:   binary.LittleEndian.Uint64(body[0:]),
		DataLen:     binary.LittleEndian.Uint64(body[8:]),
		IndexStart:  binary.LittleEndian.Uint64(body[16:]),
		IndexLen:    binary.LittleEndian.Uint64(body[24:]),
		SegmentSize: binary.LittleEndian.Uint32(body[32:]),
		Version:     binary.LittleEndian.Uint32(body[36:]),
	}
	if f.Version != SSTableVersion {
		return Footer{}, fmt.Errorf("%w: unsupported version %d", ErrCorruptSSTable, f.Version)
	}

	limit := uint64(fileSize - FooterSize)
	if f.DataLen > limit || f.DataStart > limit-f.DataLen {
		return Footer{}, fmt.Errorf("%w: data section outside file", ErrCorruptSSTable)
	}
	if f.IndexLen > limit || f.IndexStart > limit-f.IndexLen {
		return Footer{}, fmt.Errorf("%w: index section outside file", ErrCorruptSSTable)
	}
	if f.DataStart+f.DataLen > f.IndexStart {
		return Footer{}, fmt.Errorf("%w: data and index sections overlap", ErrCorruptSSTable)
	}
	return f, nil
}
