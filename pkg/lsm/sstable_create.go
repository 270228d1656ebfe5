package lsm

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/dd0wney/cluso-kv/pkg/wal"
)

// CreateSSTable writes commands, which must be in strictly ascending key
// order, to a new table at path. Commands are grouped segmentSize at a time
// and each group's first key goes into the sparse index. The table is built
// under a unique temp name and renamed into place once it is synced.
func CreateSSTable(path string, segmentSize int, commands []command.Command) (Footer, error) {
	if segmentSize <= 0 || uint64(segmentSize) > math.MaxUint32 {
		return Footer{}, fmt.Errorf("invalid segment size %d", segmentSize)
	}
	for i := 1; i < len(commands); i++ {
		if commands[i-1].Key() >= commands[i].Key() {
			return Footer{}, fmt.Errorf("commands not in ascending key order at %q", commands[i].Key())
		}
	}

	tmpPath := path + "." + uuid.NewString() + tempExt
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return Footer{}, err
	}

	footer, err := writeTable(file, segmentSize, commands)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return Footer{}, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Footer{}, err
	}
	if err := wal.SyncDir(filepath.Dir(path)); err != nil {
		return Footer{}, err
	}

	return footer, nil
}

// writeTable streams the segments, the index and the footer into file
func writeTable(file *os.File, segmentSize int, commands []command.Command) (Footer, error) {
	writer := bufio.NewWriter(file)

	index := make([]Position, 0, (len(commands)+segmentSize-1)/segmentSize)
	offset := uint64(0)

	for start := 0; start < len(commands); start += segmentSize {
		end := min(start+segmentSize, len(commands))

		block, err := encodeSegment(commands[start:end])
		if err != nil {
			return Footer{}, err
		}
		if _, err := writer.Write(block); err != nil {
			return Footer{}, err
		}

		index = append(index, Position{
			Key:    commands[start].Key(),
			Offset: offset,
			Length: uint64(len(block)),
		})
		offset += uint64(len(block))
	}

	indexBlock := encodeIndex(index)
	if _, err := writer.Write(indexBlock); err != nil {
		return Footer{}, err
	}

	footer := Footer{
		DataStart:   0,
		DataLen:     offset,
		IndexStart:  offset,
		IndexLen:    uint64(len(indexBlock)),
		SegmentSize: uint32(segmentSize),
		Version:     SSTableVersion,
	}
	if _, err := writer.Write(encodeFooter(footer)); err != nil {
		return Footer{}, err
	}

	if err := writer.Flush(); err != nil {
		return Footer{}, err
	}
	return footer, nil
}
