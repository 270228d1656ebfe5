package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/dd0wney/cluso-kv/pkg/logging"
)

// WAL is the write-ahead log mirroring the mutable memtable.
// Every mutation is appended here before it is applied in memory.
type WAL struct {
	dir    string
	opts   Options
	logger logging.Logger

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	size   int64
	closed bool
}

// Open opens (or creates) the active log in dir
func Open(dir string, opts Options) (*WAL, error) {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if err := EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	w := &WAL{
		dir:    dir,
		opts:   opts,
		logger: opts.Logger.With(logging.Component("wal")),
	}
	if err := w.openActive(); err != nil {
		return nil, err
	}
	return w, nil
}

// openActive opens the canonical log file for appending
func (w *WAL) openActive() error {
	file, err := openAppend(w.Path())
	if err != nil {
		return err
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat WAL file: %w", err)
	}

	w.file = file
	w.writer = bufio.NewWriterSize(file, writerBufferSize)
	w.size = info.Size()
	return nil
}

// Path returns the location of the active log
func (w *WAL) Path() string {
	return filepath.Join(w.dir, FileName)
}

// TempPath returns the location of the rotated log
func (w *WAL) TempPath() string {
	return TempPath(w.dir)
}

// TempPath returns the location of the rotated log inside dir
func TempPath(dir string) string {
	return filepath.Join(dir, TempFileName)
}

// Append writes one command to the log. When it returns an error the
// mutation must not be treated as durable.
func (w *WAL) Append(c command.Command) error {
	payload, err := command.Encode(c)
	if err != nil {
		return err
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrRecordTooLarge, len(payload), maxRecordSize)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkActive(); err != nil {
		return err
	}

	n, err := writeRecord(w.writer, payload)
	if err != nil {
		return fmt.Errorf("failed to write WAL record: %w", err)
	}

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL: %w", err)
	}

	if w.opts.SyncWrites {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync WAL: %w", err)
		}
	}

	w.size += int64(n)
	return nil
}

// Replay decodes the active log from the beginning and hands every command
// to fn. A torn trailing record is dropped and the file is cut back to the
// last complete record so later appends start on a record boundary.
func (w *WAL) Replay(fn func(command.Command) error) (ReplayResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkActive(); err != nil {
		return ReplayResult{}, err
	}

	if err := w.writer.Flush(); err != nil {
		return ReplayResult{}, fmt.Errorf("failed to flush WAL: %w", err)
	}

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return ReplayResult{}, err
	}

	result, err := replayRecords(w.file, fn)
	if err != nil {
		return result, err
	}

	if result.TornBytes > 0 {
		w.logger.Warn("discarding torn WAL record",
			logging.Path(w.Path()),
			logging.Int64("valid_bytes", result.ValidBytes),
			logging.Int64("torn_bytes", result.TornBytes),
		)
		if err := w.file.Truncate(result.ValidBytes); err != nil {
			return result, fmt.Errorf("failed to truncate torn WAL tail: %w", err)
		}
	}

	// Seek back to end for appending
	end, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return result, err
	}
	w.size = end

	return result, nil
}

// ReplayFile decodes a log file that is not open for writing, such as the
// rotated temp log left behind by an interrupted flush.
func ReplayFile(path string, logger logging.Logger, fn func(command.Command) error) (ReplayResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return ReplayResult{}, err
	}
	defer file.Close()

	result, err := replayRecords(file, fn)
	if err != nil {
		return result, err
	}

	if result.TornBytes > 0 && logger != nil {
		logger.Warn("discarding torn WAL record",
			logging.Path(path),
			logging.Int64("valid_bytes", result.ValidBytes),
			logging.Int64("torn_bytes", result.TornBytes),
		)
	}
	return result, nil
}

// Rotate closes the active log, renames it to the temp name and opens a
// fresh active log. Any failure wraps ErrRotate.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.checkActive(); err != nil {
		return err
	}

	if err := w.closeFile(); err != nil {
		return fmt.Errorf("%w: %v", ErrRotate, err)
	}

	tmpPath := w.TempPath()
	if err := removeIfExists(tmpPath); err != nil {
		return fmt.Errorf("%w: stale temp log: %v", ErrRotate, err)
	}

	if err := os.Rename(w.Path(), tmpPath); err != nil {
		return fmt.Errorf("%w: %v", ErrRotate, err)
	}

	if err := SyncDir(w.dir); err != nil {
		return fmt.Errorf("%w: %v", ErrRotate, err)
	}

	if err := w.openActive(); err != nil {
		return fmt.Errorf("%w: %v", ErrRotate, err)
	}

	w.logger.Debug("rotated WAL", logging.Path(tmpPath))
	return nil
}

// RemoveTemp deletes the rotated log. A missing file is not an error.
func (w *WAL) RemoveTemp() error {
	if err := removeIfExists(w.TempPath()); err != nil {
		return err
	}
	return SyncDir(w.dir)
}

// Size returns the byte length of the active log
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// checkActive reports whether the log can take I/O. A rotation that failed
// after closing the old handle leaves no active file behind.
// Must be called with w.mu held.
func (w *WAL) checkActive() error {
	if w.closed {
		return ErrClosed
	}
	if w.file == nil {
		return fmt.Errorf("%w: no active log file", ErrRotate)
	}
	return nil
}

// Close flushes and closes the active log. Calling Close twice is a no-op.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeFile()
}

// closeFile flushes, syncs and closes the current handle. Must be called with w.mu held.
func (w *WAL) closeFile() error {
	if w.file == nil {
		return nil
	}

	flushErr := w.writer.Flush()
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	w.writer = nil

	if flushErr != nil {
		return fmt.Errorf("failed to flush WAL: %w", flushErr)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to sync WAL: %w", syncErr)
	}
	return closeErr
}
