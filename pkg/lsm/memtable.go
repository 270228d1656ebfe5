package lsm

import (
	"maps"
	"slices"
	"sync"

	"github.com/dd0wney/cluso-kv/pkg/command"
)

// MemTable is the in-memory write buffer. It holds the latest command per
// key, tombstones included.
type MemTable struct {
	mu    sync.RWMutex
	data  map[string]command.Command
	bytes int // Approximate size of keys and values in bytes
}

// NewMemTable creates an empty MemTable
func NewMemTable() *MemTable {
	return &MemTable{
		data: make(map[string]command.Command),
	}
}

// Put stores c, replacing any command already held for its key
func (mt *MemTable) Put(c command.Command) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.putLocked(c)
}

// PutIfAbsent stores c only when the key has no entry yet. Reports whether
// the command was stored.
func (mt *MemTable) PutIfAbsent(c command.Command) bool {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	if _, exists := mt.data[c.Key()]; exists {
		return false
	}
	mt.putLocked(c)
	return true
}

func (mt *MemTable) putLocked(c command.Command) {
	if existing, exists := mt.data[c.Key()]; exists {
		mt.bytes -= len(existing.Value())
	} else {
		mt.bytes += len(c.Key())
	}
	mt.bytes += len(c.Value())
	mt.data[c.Key()] = c
}

// Get returns the command held for key. Tombstones are returned as-is.
func (mt *MemTable) Get(key string) (command.Command, bool) {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	c, exists := mt.data[key]
	return c, exists
}

// Len returns the number of keys held
func (mt *MemTable) Len() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return len(mt.data)
}

// ApproximateBytes returns the summed size of keys and values
func (mt *MemTable) ApproximateBytes() int {
	mt.mu.RLock()
	defer mt.mu.RUnlock()
	return mt.bytes
}

// Commands returns every command in ascending key order
func (mt *MemTable) Commands() []command.Command {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	keys := slices.Sorted(maps.Keys(mt.data))
	commands := make([]command.Command, 0, len(keys))
	for _, k := range keys {
		commands = append(commands, mt.data[k])
	}
	return commands
}
