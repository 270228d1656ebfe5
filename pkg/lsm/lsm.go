package lsm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/dd0wney/cluso-kv/pkg/logging"
	"github.com/dd0wney/cluso-kv/pkg/wal"
)

// Open opens the engine in opts.DataDir and recovers its state: the temp
// log of an interrupted flush first, then every table, then the live log.
// An interrupted flush is completed before Open returns.
func Open(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if err := wal.EnsureDir(opts.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	e := &Engine{
		memTable: NewMemTable(),
		opts:     opts,
		logger:   opts.Logger.With(logging.Component("lsm")),
		metrics:  opts.Metrics,
	}

	if err := e.recover(); err != nil {
		e.releaseResources()
		return nil, err
	}

	e.metrics.UpdateState(len(e.tables), e.memTable.Len())
	return e, nil
}

func (e *Engine) recover() error {
	timer := logging.StartTimer(e.logger, "recovered engine", logging.Path(e.opts.DataDir))

	if err := e.removeStaleBuilds(); err != nil {
		return err
	}

	tmpPath := wal.TempPath(e.opts.DataDir)
	interrupted := wal.FileExists(tmpPath)
	tmpRecords := 0
	if interrupted {
		result, err := wal.ReplayFile(tmpPath, e.logger, e.replayCommand)
		if err != nil {
			return fmt.Errorf("failed to replay %s: %w", tmpPath, err)
		}
		tmpRecords = result.Records
		e.metrics.RecordReplay(wal.TempFileName, result.Records)
	}

	if err := e.loadTables(); err != nil {
		return err
	}

	w, err := wal.Open(e.opts.DataDir, wal.Options{
		SyncWrites: e.opts.SyncWrites,
		Logger:     e.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open WAL: %w", err)
	}
	e.wal = w

	result, err := w.Replay(e.replayCommand)
	if err != nil {
		return fmt.Errorf("failed to replay WAL: %w", err)
	}
	e.metrics.RecordReplay(wal.FileName, result.Records)

	if interrupted {
		if err := e.completeInterruptedFlush(); err != nil {
			return err
		}
	}

	timer.End(
		logging.Int("tables", len(e.tables)),
		logging.Int("temp_wal_records", tmpRecords),
		logging.Int("wal_records", result.Records),
		logging.Int("memtable_keys", e.memTable.Len()),
		logging.Bool("completed_interrupted_flush", interrupted),
	)
	return nil
}

func (e *Engine) replayCommand(c command.Command) error {
	e.memTable.Put(c)
	return nil
}

// removeStaleBuilds deletes half-written tables left by a crash mid-build
func (e *Engine) removeStaleBuilds() error {
	entries, err := os.ReadDir(e.opts.DataDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, tempExt) || !strings.Contains(name, TableExt+".") {
			continue
		}
		path := filepath.Join(e.opts.DataDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale table build: %w", err)
		}
		e.logger.Warn("removed stale table build", logging.Path(path))
	}
	return nil
}

// loadTables opens every table in the data directory, newest first
func (e *Engine) loadTables() error {
	entries, err := os.ReadDir(e.opts.DataDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := ParseTableName(entry.Name())
		if !ok {
			continue
		}

		table, err := OpenSSTable(filepath.Join(e.opts.DataDir, entry.Name()), e.opts.tableOptions())
		if err != nil {
			return err
		}
		e.tables = append(e.tables, table)
		e.lastTs = max(e.lastTs, ts)
	}

	sort.Slice(e.tables, func(i, j int) bool {
		return e.tables[i].CreatedAt() > e.tables[j].CreatedAt()
	})
	return nil
}

// Set stores value under key
func (e *Engine) Set(key, value string) error {
	return e.apply("set", command.Set(key, value))
}

// Remove deletes key by writing a tombstone
func (e *Engine) Remove(key string) error {
	return e.apply("rm", command.Remove(key))
}

func (e *Engine) apply(op string, c command.Command) error {
	start := time.Now()
	err := e.write(c)
	e.metrics.RecordOperation(op, statusOf(err), time.Since(start))
	return err
}

func (e *Engine) write(c command.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.flushErr != nil {
		return e.flushErr
	}

	if err := e.wal.Append(c); err != nil {
		return fmt.Errorf("failed to append to WAL: %w", err)
	}
	e.memTable.Put(c)
	e.stats.WriteCount.Add(1)

	if e.memTable.Len() > e.opts.FlushThreshold {
		if err := e.flush(); err != nil {
			return err
		}
	}

	e.metrics.UpdateState(len(e.tables), e.memTable.Len())
	return nil
}

// Get returns the live value for key. A key whose newest command is a
// tombstone reads as absent.
func (e *Engine) Get(key string) (string, bool, error) {
	start := time.Now()
	value, found, err := e.get(key)
	e.metrics.RecordOperation("get", statusOf(err), time.Since(start))
	return value, found, err
}

func (e *Engine) get(key string) (string, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return "", false, ErrClosed
	}
	e.stats.ReadCount.Add(1)

	// 1. Check active MemTable
	if c, ok := e.memTable.Get(key); ok {
		return e.resolve(key, c, tierMemTable)
	}

	// 2. Check frozen MemTable
	if e.immutable != nil {
		if c, ok := e.immutable.Get(key); ok {
			return e.resolve(key, c, tierImmutable)
		}
	}

	// 3. Check tables from newest to oldest
	for _, table := range e.tables {
		c, ok, err := table.Query(key)
		if err != nil {
			return "", false, err
		}
		if !ok {
			continue
		}
		// Remember table tombstones in memory so repeated misses stay cheap.
		// The memtable has its own lock; writers are excluded by e.mu.
		if c.IsTombstone() && e.memTable.PutIfAbsent(c) {
			e.stats.TombstonesCached.Add(1)
			e.metrics.RecordTombstoneCached()
		}
		return e.resolve(key, c, tierTable)
	}

	e.logger.Debug("key not found", logging.Key(key))
	e.metrics.RecordReadHit(tierMiss)
	return "", false, nil
}

func (e *Engine) resolve(key string, c command.Command, tier string) (string, bool, error) {
	e.logger.Debug("resolved read", logging.Key(key), logging.Tier(tier), logging.Bool("tombstone", c.IsTombstone()))
	e.metrics.RecordReadHit(tier)
	if c.IsTombstone() {
		return "", false, nil
	}
	return c.Value(), true, nil
}

// Stats returns a snapshot of engine statistics
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		WriteCount:       e.stats.WriteCount.Load(),
		ReadCount:        e.stats.ReadCount.Load(),
		FlushCount:       e.stats.FlushCount.Load(),
		TombstonesCached: e.stats.TombstonesCached.Load(),
		MemTableLen:      e.memTable.Len(),
		MemTableBytes:    e.memTable.ApproximateBytes(),
		TableCount:       len(e.tables),
		FlushFailed:      e.flushErr != nil,
	}
	if !e.closed {
		s.WALBytes = e.wal.Size()
	}
	return s
}

// Tables returns the paths of the open tables, newest first
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	paths := make([]string, 0, len(e.tables))
	for _, t := range e.tables {
		paths = append(paths, t.Path())
	}
	return paths
}

// Close syncs and closes the WAL and every table. Later operations return
// ErrClosed. Calling Close twice is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if err := e.releaseResources(); err != nil {
		e.logger.Error("close failed", logging.Error(err))
		return err
	}
	e.logger.Info("closed engine", logging.Path(e.opts.DataDir))
	return nil
}

// releaseResources closes the WAL and every table, collecting errors
func (e *Engine) releaseResources() error {
	var errs []error
	if e.wal != nil {
		if err := e.wal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close WAL: %w", err))
		}
	}
	for _, t := range e.tables {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", t.Path(), err))
		}
	}
	return errors.Join(errs...)
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
