package lsm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/dd0wney/cluso-kv/pkg/command"
)

// OpenSSTable opens an existing table, reading its footer and sparse index
func OpenSSTable(path string, opts TableOptions) (*SSTable, error) {
	reader, size, err := openReader(path, opts)
	if err != nil {
		return nil, err
	}

	if size < FooterSize {
		_ = reader.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, smaller than footer", ErrCorruptSSTable, path, size)
	}

	footerBuf := make([]byte, FooterSize)
	if err := readFull(reader, footerBuf, size-FooterSize); err != nil {
		_ = reader.Close()
		return nil, err
	}
	footer, err := decodeFooter(footerBuf, size)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	indexBuf := make([]byte, footer.IndexLen)
	if err := readFull(reader, indexBuf, int64(footer.IndexStart)); err != nil {
		_ = reader.Close()
		return nil, err
	}
	index, err := decodeIndex(indexBuf, footer)
	if err != nil {
		_ = reader.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	createdAt, _ := ParseTableName(filepath.Base(path))

	return &SSTable{
		path:      path,
		reader:    reader,
		size:      size,
		footer:    footer,
		index:     index,
		createdAt: createdAt,
		mapped:    opts.UseMmap,
	}, nil
}

// openReader opens the read backend selected by opts
func openReader(path string, opts TableOptions) (tableReader, int64, error) {
	if opts.UseMmap {
		return openMapped(path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, err
	}
	return file, info.Size(), nil
}

// readFull fills buf from r at off. A short read means the file is smaller
// than its footer claims.
func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		return fmt.Errorf("%w: short read at offset %d (%d of %d bytes)", ErrCorruptSSTable, off, n, len(buf))
	}
	return err
}

// Query looks up key. It locates the last segment whose first key is <= key
// and the first segment whose first key is greater, reads both with a single
// positioned read and scans them in order.
func (t *SSTable) Query(key string) (command.Command, bool, error) {
	var lastSmall, firstBig *Position
	for i := range t.index {
		if t.index[i].Key <= key {
			lastSmall = &t.index[i]
			continue
		}
		firstBig = &t.index[i]
		break
	}

	candidates := make([]Position, 0, 2)
	if lastSmall != nil {
		candidates = append(candidates, *lastSmall)
	}
	if firstBig != nil {
		candidates = append(candidates, *firstBig)
	}
	if len(candidates) == 0 {
		return command.Command{}, false, nil
	}

	start := candidates[0].Offset
	end := candidates[0].End()
	for _, p := range candidates[1:] {
		end = max(end, p.End())
	}

	buf := make([]byte, end-start)
	if err := readFull(t.reader, buf, int64(start)); err != nil {
		return command.Command{}, false, fmt.Errorf("%s: %w", t.path, err)
	}

	for _, p := range candidates {
		rel := p.Offset - start
		commands, err := decodeSegment(buf[rel : rel+p.Length])
		if err != nil {
			return command.Command{}, false, fmt.Errorf("%s: segment at %d: %w", t.path, p.Offset, err)
		}
		if i, ok := slices.BinarySearchFunc(commands, key, func(c command.Command, k string) int {
			switch {
			case c.Key() < k:
				return -1
			case c.Key() > k:
				return 1
			}
			return 0
		}); ok {
			return commands[i], true, nil
		}
	}

	return command.Command{}, false, nil
}

// Commands reads and decodes every segment in key order
func (t *SSTable) Commands() ([]command.Command, error) {
	buf := make([]byte, t.footer.DataLen)
	if err := readFull(t.reader, buf, int64(t.footer.DataStart)); err != nil {
		return nil, fmt.Errorf("%s: %w", t.path, err)
	}

	var all []command.Command
	for _, p := range t.index {
		rel := p.Offset - t.footer.DataStart
		commands, err := decodeSegment(buf[rel : rel+p.Length])
		if err != nil {
			return nil, fmt.Errorf("%s: segment at %d: %w", t.path, p.Offset, err)
		}
		all = append(all, commands...)
	}
	return all, nil
}

// Path returns the table's file path
func (t *SSTable) Path() string {
	return t.path
}

// CreatedAt returns the creation timestamp (Unix millis) encoded in the
// file name, or 0 when the name does not follow the table naming scheme
func (t *SSTable) CreatedAt() int64 {
	return t.createdAt
}

// Footer returns the decoded footer
func (t *SSTable) Footer() Footer {
	return t.footer
}

// Index returns a copy of the sparse index
func (t *SSTable) Index() []Position {
	return slices.Clone(t.index)
}

// Size returns the file size in bytes
func (t *SSTable) Size() int64 {
	return t.size
}

// Mapped reports whether the table is read through a memory mapping
func (t *SSTable) Mapped() bool {
	return t.mapped
}

// Close releases the table's file handle or mapping
func (t *SSTable) Close() error {
	if t.reader == nil {
		return nil
	}
	err := t.reader.Close()
	t.reader = nil
	return err
}
