package lsm

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/dd0wney/cluso-kv/pkg/logging"
)

// flush freezes the memtable, rotates the WAL and writes the frozen
// commands into a new table at the front of the read path. Must be called
// with e.mu held for writing.
//
// On failure the frozen memtable stays readable, the temp WAL stays on disk
// for the next Open, and every later write returns the flush error.
func (e *Engine) flush() error {
	start := time.Now()

	e.immutable = e.memTable
	e.memTable = NewMemTable()
	entries := e.immutable.Len()

	table, err := e.persistImmutable()
	if err != nil {
		e.flushErr = fmt.Errorf("%w: %w", ErrFlushFailed, err)
		e.logger.Error("memtable flush failed",
			logging.Count(entries),
			logging.Latency(time.Since(start)),
			logging.Error(err),
		)
		e.metrics.RecordFlush("error", entries, time.Since(start))
		return e.flushErr
	}

	e.stats.FlushCount.Add(1)
	e.metrics.RecordFlush("ok", entries, time.Since(start))
	e.logger.Info("flushed memtable",
		logging.Path(table.Path()),
		logging.Count(entries),
		logging.Int("segments", len(table.index)),
		logging.Latency(time.Since(start)),
	)
	return nil
}

func (e *Engine) persistImmutable() (*SSTable, error) {
	if err := e.wal.Rotate(); err != nil {
		return nil, err
	}

	table, err := e.buildTable(e.immutable.Commands())
	if err != nil {
		return nil, err
	}
	e.tables = append([]*SSTable{table}, e.tables...)
	e.immutable = nil

	if err := e.wal.RemoveTemp(); err != nil {
		return table, fmt.Errorf("failed to remove temp WAL: %w", err)
	}
	return table, nil
}

// buildTable writes commands into a fresh table and opens it
func (e *Engine) buildTable(commands []command.Command) (*SSTable, error) {
	path := filepath.Join(e.opts.DataDir, TableName(e.nextTimestamp()))
	if _, err := CreateSSTable(path, e.opts.SegmentSize, commands); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return OpenSSTable(path, e.opts.tableOptions())
}

// nextTimestamp returns the current Unix millis, bumped past the newest
// existing table so names stay unique and ordered
func (e *Engine) nextTimestamp() int64 {
	ts := time.Now().UnixMilli()
	if ts <= e.lastTs {
		ts = e.lastTs + 1
	}
	e.lastTs = ts
	return ts
}

// completeInterruptedFlush persists everything recovered from the temp and
// live logs into one table, then discards both logs. Called from Open
// before the engine is shared.
func (e *Engine) completeInterruptedFlush() error {
	start := time.Now()
	entries := e.memTable.Len()

	if entries > 0 {
		table, err := e.buildTable(e.memTable.Commands())
		if err != nil {
			return fmt.Errorf("failed to complete interrupted flush: %w", err)
		}
		e.tables = append([]*SSTable{table}, e.tables...)
	}

	if err := e.wal.RemoveTemp(); err != nil {
		return fmt.Errorf("failed to remove temp WAL: %w", err)
	}
	if err := e.wal.Rotate(); err != nil {
		return err
	}
	if err := e.wal.RemoveTemp(); err != nil {
		return fmt.Errorf("failed to remove temp WAL: %w", err)
	}

	e.memTable = NewMemTable()
	e.stats.FlushCount.Add(1)
	e.metrics.RecordFlush("ok", entries, time.Since(start))
	e.logger.Warn("completed interrupted flush",
		logging.Count(entries),
		logging.Latency(time.Since(start)),
	)
	return nil
}
