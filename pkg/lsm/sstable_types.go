package lsm

import (
	"errors"
	"io"
	"regexp"
	"strconv"
)

// SSTable format:
//   [Segment 0] ... [Segment N-1]   segmentSize commands each, the last may be short
//   [Index Block]                   first key + position of every segment
//   [Footer: 48 bytes]              section bounds, segment size, version, magic, crc32
//
// Segment: count(uvarint) | { len(uvarint) | command } * count | crc32(4)
// Index:   count(uvarint) | { keyLen(uvarint) | key | offset(8) | length(8) } * count | crc32(4)
// All fixed-width integers are little endian.

const (
	SSTableMagic   = 0x4B565354 // "KVST"
	SSTableVersion = 1
	FooterSize     = 48

	// TableExt is the suffix of a finished table file
	TableExt = ".table"

	// tempExt marks a table that is still being written
	tempExt = ".tmp"

	crcSize = 4
)

var (
	// ErrCorruptSSTable is returned for any table whose footer, index or
	// segments fail validation
	ErrCorruptSSTable = errors.New("corrupt sstable")

	tableNamePattern = regexp.MustCompile(`^(\d+)\.table$`)
)

// Footer locates the data and index sections of a table
type Footer struct {
	DataStart   uint64
	DataLen     uint64
	IndexStart  uint64
	IndexLen    uint64
	SegmentSize uint32
	Version     uint32
}

// Position describes one segment: its first key and where its block lives
type Position struct {
	Key    string
	Offset uint64
	Length uint64
}

// End returns the offset one past the segment block
func (p Position) End() uint64 {
	return p.Offset + p.Length
}

// TableOptions controls how a table is opened
type TableOptions struct {
	UseMmap bool // Read through a memory mapping instead of file reads
}

// tableReader is the positioned-read backend behind an SSTable
type tableReader interface {
	io.ReaderAt
	io.Closer
}

// SSTable is an open, immutable sorted table. Only the footer and the
// sparse index are held in memory.
type SSTable struct {
	path      string
	reader    tableReader
	size      int64
	footer    Footer
	index     []Position
	createdAt int64
	mapped    bool
}

// TableName returns the file name of a table created at ts (Unix millis)
func TableName(ts int64) string {
	return strconv.FormatInt(ts, 10) + TableExt
}

// ParseTableName extracts the creation timestamp from a table file name
func ParseTableName(name string) (int64, bool) {
	m := tableNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	ts, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
