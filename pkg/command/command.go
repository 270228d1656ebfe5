// Package command defines the mutation record shared by the write-ahead log,
// the memtable and the on-disk sorted tables.
//
// A Command is a closed tagged union: it is either a Set carrying a key and a
// value, or a Remove (tombstone) carrying only a key. Consumers switch on Kind
// and must handle both variants.
package command

import "fmt"

// Kind discriminates the Command variants
type Kind uint8

const (
	// KindSet stores a value for a key
	KindSet Kind = iota + 1
	// KindRemove marks a key deleted (tombstone)
	KindRemove
)

// String returns the string representation of a kind
func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindRemove:
		return "rm"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Command is a single mutation. The zero value is not a valid command; use
// Set or Remove to construct one.
type Command struct {
	kind  Kind
	key   string
	value string
}

// Set returns a command storing value under key
func Set(key, value string) Command {
	return Command{kind: KindSet, key: key, value: value}
}

// Remove returns a tombstone for key
func Remove(key string) Command {
	return Command{kind: KindRemove, key: key}
}

// Kind returns the variant of the command
func (c Command) Kind() Kind {
	return c.kind
}

// Key returns the key the command applies to
func (c Command) Key() string {
	return c.key
}

// Value returns the stored value. It is empty for tombstones.
func (c Command) Value() string {
	return c.value
}

// IsTombstone reports whether the command is a Remove
func (c Command) IsTombstone() bool {
	return c.kind == KindRemove
}

// String formats the command for logs and the CLI
func (c Command) String() string {
	switch c.kind {
	case KindSet:
		return fmt.Sprintf("set(%q=%q)", c.key, c.value)
	case KindRemove:
		return fmt.Sprintf("rm(%q)", c.key)
	default:
		return fmt.Sprintf("invalid(%q)", c.key)
	}
}
