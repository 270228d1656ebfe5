package lsm

import (
	"golang.org/x/exp/mmap"
)

// openMapped maps the table file read-only and returns the mapping with
// its length
func openMapped(path string) (tableReader, int64, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, 0, err
	}
	return reader, int64(reader.Len()), nil
}
