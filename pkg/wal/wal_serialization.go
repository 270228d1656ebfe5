package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dd0wney/cluso-kv/pkg/command"
)

// Record format: [Length:4 big-endian][Payload:Length]
// The payload is a command encoded with command.Encode.

// writeRecord appends one length-prefixed record to the buffered writer
func writeRecord(w *bufio.Writer, payload []byte) (int, error) {
	if len(payload) > maxRecordSize {
		return 0, ErrRecordTooLarge
	}

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))

	if _, err := w.Write(prefix[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(payload); err != nil {
		return 0, err
	}
	return lengthPrefixSize + len(payload), nil
}

// replayRecords decodes records from r until end of input.
// A record whose prefix or payload runs past the end is treated as a torn
// write and dropped. A complete record that does not decode is an error.
func replayRecords(r io.Reader, fn func(command.Command) error) (ReplayResult, error) {
	reader := bufio.NewReader(r)
	var result ReplayResult
	var prefix [lengthPrefixSize]byte

	for {
		n, err := io.ReadFull(reader, prefix[:])
		if err == io.EOF {
			return result, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			result.TornBytes = int64(n)
			return result, nil
		}
		if err != nil {
			return result, err
		}

		length := binary.BigEndian.Uint32(prefix[:])
		if length > maxRecordSize {
			return result, fmt.Errorf("%w: record at offset %d declares %d bytes", command.ErrDecode, result.ValidBytes, length)
		}

		payload := make([]byte, length)
		n, err = io.ReadFull(reader, payload)
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			result.TornBytes = int64(lengthPrefixSize + n)
			return result, nil
		}
		if err != nil {
			return result, err
		}

		cmd, err := command.Decode(payload)
		if err != nil {
			return result, fmt.Errorf("record at offset %d: %w", result.ValidBytes, err)
		}

		if err := fn(cmd); err != nil {
			return result, fmt.Errorf("failed to replay record %d: %w", result.Records, err)
		}

		result.Records++
		result.ValidBytes += int64(lengthPrefixSize) + int64(length)
	}
}
