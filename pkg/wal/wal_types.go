package wal

import (
	"errors"

	"github.com/dd0wney/cluso-kv/pkg/logging"
)

const (
	// FileName is the active log inside the data directory
	FileName = "wal"
	// TempFileName holds the previous log while its memtable is being flushed.
	// Its presence at startup means a flush did not complete.
	TempFileName = "walTmp"

	// lengthPrefixSize is the big-endian uint32 in front of every record
	lengthPrefixSize = 4

	// maxRecordSize bounds a single record so a corrupt prefix cannot force a huge allocation
	maxRecordSize = 64 * 1024 * 1024

	writerBufferSize = 64 * 1024
)

var (
	// ErrClosed is returned when using a closed log
	ErrClosed = errors.New("wal: log is closed")
	// ErrRotate wraps failures while cutting over to a new log file.
	// These are fatal for the caller: the temp-log invariant may not hold.
	ErrRotate = errors.New("wal: rotate failed")
	// ErrRecordTooLarge is returned by Append for commands that replay
	// would refuse to read back
	ErrRecordTooLarge = errors.New("wal: record too large")
)

// Options configures a WAL
type Options struct {
	// SyncWrites fsyncs the file after every append
	SyncWrites bool
	Logger     logging.Logger
}

// DefaultOptions returns durable defaults
func DefaultOptions() Options {
	return Options{
		SyncWrites: true,
		Logger:     logging.NewNopLogger(),
	}
}

// ReplayResult describes a finished replay
type ReplayResult struct {
	Records    int   // Records decoded and handed to the callback
	ValidBytes int64 // Length of the well-formed prefix
	TornBytes  int64 // Trailing bytes of a partial record that were discarded
}
