package wal

import "github.com/dd0wney/cluso-kv/pkg/command"

// Appender is the interface for appending commands to a WAL.
type Appender interface {
	// Append persists one command. The command is durable only when
	// Append returns nil.
	Append(c command.Command) error
}

// Replayer is the interface for reading commands back from a WAL.
type Replayer interface {
	// Replay iterates through all records and calls fn for each.
	// Used for recovery after restart.
	Replay(fn func(command.Command) error) (ReplayResult, error)
}

// Manager is the interface for WAL lifecycle management.
type Manager interface {
	// Rotate moves the active log aside as the temp log and starts a new one.
	Rotate() error

	// RemoveTemp deletes the temp log once its contents are safely on disk.
	RemoveTemp() error

	// Size reports the byte length of the active log.
	Size() int64

	// Close flushes any buffered data and closes the WAL.
	Close() error
}

// WriteAheadLog is the complete interface used by the engine.
type WriteAheadLog interface {
	Appender
	Replayer
	Manager
}

var _ WriteAheadLog = (*WAL)(nil)
