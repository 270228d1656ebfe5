package metrics

import (
	"time"
)

// All recorders accept a nil *Registry so the engine can run uninstrumented.

// RecordOperation records an engine operation with its duration
func (r *Registry) RecordOperation(operation, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordReadHit records which tier resolved a read
func (r *Registry) RecordReadHit(tier string) {
	if r == nil {
		return
	}
	r.ReadTierHits.WithLabelValues(tier).Inc()
}

// RecordTombstoneCached records a table tombstone copied into memory
func (r *Registry) RecordTombstoneCached() {
	if r == nil {
		return
	}
	r.TombstonesCached.Inc()
}

// RecordFlush records a memtable flush
func (r *Registry) RecordFlush(status string, entries int, duration time.Duration) {
	if r == nil {
		return
	}
	r.FlushesTotal.WithLabelValues(status).Inc()
	r.FlushDuration.Observe(duration.Seconds())
	if status == "ok" {
		r.FlushedEntries.Add(float64(entries))
	}
}

// UpdateState sets the table count and memtable size gauges
func (r *Registry) UpdateState(tables, memTableEntries int) {
	if r == nil {
		return
	}
	r.TablesTotal.Set(float64(tables))
	r.MemTableEntries.Set(float64(memTableEntries))
}

// RecordReplay records WAL records replayed from the named log
func (r *Registry) RecordReplay(log string, records int) {
	if r == nil {
		return
	}
	r.WALReplayedRecords.WithLabelValues(log).Add(float64(records))
}
