package wal

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dd0wney/cluso-kv/pkg/command"
	"github.com/stretchr/testify/require"
)

func newTestWAL(t *testing.T, dir string) *WAL {
	t.Helper()
	w, err := Open(dir, DefaultOptions())
	require.NoError(t, err)
	return w
}

func replayAll(t *testing.T, w *WAL) ([]command.Command, ReplayResult) {
	t.Helper()
	var got []command.Command
	result, err := w.Replay(func(c command.Command) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)
	return got, result
}

func TestWAL_AppendAndReplay(t *testing.T) {
	w := newTestWAL(t, t.TempDir())
	defer w.Close()

	want := []command.Command{
		command.Set("a", "1"),
		command.Remove("b"),
		command.Set("a", "2"),
	}
	for _, c := range want {
		require.NoError(t, w.Append(c))
	}

	got, result := replayAll(t, w)
	require.Equal(t, want, got)
	require.Equal(t, 3, result.Records)
	require.Zero(t, result.TornBytes)
	require.Equal(t, result.ValidBytes, w.Size())
}

func TestWAL_RecordFraming(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)

	c := command.Set("key", "value")
	require.NoError(t, w.Append(c))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(w.Path())
	require.NoError(t, err)

	payload, err := command.Encode(c)
	require.NoError(t, err)
	require.Len(t, raw, 4+len(payload))
	require.Equal(t, uint32(len(payload)), binary.BigEndian.Uint32(raw[:4]))
	require.Equal(t, payload, raw[4:])
}

func TestWAL_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)
	require.NoError(t, w.Append(command.Set("k1", "v1")))
	require.NoError(t, w.Close())

	w = newTestWAL(t, dir)
	defer w.Close()
	require.NoError(t, w.Append(command.Set("k2", "v2")))

	got, _ := replayAll(t, w)
	require.Equal(t, []command.Command{command.Set("k1", "v1"), command.Set("k2", "v2")}, got)
}

func TestWAL_TornTailDiscarded(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)
	require.NoError(t, w.Append(command.Set("k1", "v1")))
	require.NoError(t, w.Close())

	validSize, err := FileSize(w.Path())
	require.NoError(t, err)

	tests := []struct {
		name string
		tail []byte
	}{
		{name: "partial prefix", tail: []byte{0, 0}},
		{name: "partial payload", tail: []byte{0, 0, 0, 20, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.Truncate(w.Path(), validSize))
			f, err := os.OpenFile(w.Path(), os.O_WRONLY|os.O_APPEND, 0644)
			require.NoError(t, err)
			_, err = f.Write(tt.tail)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			reopened := newTestWAL(t, dir)
			defer reopened.Close()

			got, result := replayAll(t, reopened)
			require.Equal(t, []command.Command{command.Set("k1", "v1")}, got)
			require.Equal(t, int64(len(tt.tail)), result.TornBytes)

			// New appends land on a record boundary
			require.NoError(t, reopened.Append(command.Set("k2", "v2")))
			got, result = replayAll(t, reopened)
			require.Equal(t, []command.Command{command.Set("k1", "v1"), command.Set("k2", "v2")}, got)
			require.Zero(t, result.TornBytes)
		})
	}
}

func TestWAL_CorruptRecordSurfacesDecodeError(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)
	require.NoError(t, w.Append(command.Set("k1", "v1")))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(w.Path(), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 3, 1, 99, 0})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := newTestWAL(t, dir)
	defer reopened.Close()

	_, err = reopened.Replay(func(command.Command) error { return nil })
	require.ErrorIs(t, err, command.ErrDecode)
}

func TestWAL_Rotate(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)
	defer w.Close()

	require.NoError(t, w.Append(command.Set("old", "1")))
	require.NoError(t, w.Rotate())

	require.True(t, FileExists(w.TempPath()))
	require.Zero(t, w.Size())

	require.NoError(t, w.Append(command.Set("new", "2")))

	got, _ := replayAll(t, w)
	require.Equal(t, []command.Command{command.Set("new", "2")}, got)

	var rotated []command.Command
	_, err := ReplayFile(w.TempPath(), nil, func(c command.Command) error {
		rotated = append(rotated, c)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []command.Command{command.Set("old", "1")}, rotated)

	require.NoError(t, w.RemoveTemp())
	require.False(t, FileExists(w.TempPath()))
	require.NoError(t, w.RemoveTemp())
}

func TestWAL_RotateReplacesStaleTemp(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(TempPath(dir), []byte("stale"), 0644))

	w := newTestWAL(t, dir)
	defer w.Close()
	require.NoError(t, w.Append(command.Remove("gone")))
	require.NoError(t, w.Rotate())

	var rotated []command.Command
	_, err := ReplayFile(TempPath(dir), nil, func(c command.Command) error {
		rotated = append(rotated, c)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []command.Command{command.Remove("gone")}, rotated)
}

func TestWAL_Closed(t *testing.T) {
	w := newTestWAL(t, t.TempDir())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	require.ErrorIs(t, w.Append(command.Set("k", "v")), ErrClosed)
	require.ErrorIs(t, w.Rotate(), ErrClosed)
	_, err := w.Replay(func(command.Command) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestWAL_RejectsOversizedRecord(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)
	defer w.Close()

	big := strings.Repeat("x", maxRecordSize+1)
	require.ErrorIs(t, w.Append(command.Set("big", big)), ErrRecordTooLarge)
	require.Zero(t, w.Size(), "nothing may reach the log")

	require.NoError(t, w.Append(command.Set("small", "1")))

	got, _ := replayAll(t, w)
	require.Equal(t, []command.Command{command.Set("small", "1")}, got)
}

func TestWAL_AppendAfterFailedRotate(t *testing.T) {
	dir := t.TempDir()
	w := newTestWAL(t, dir)

	require.NoError(t, w.Append(command.Set("a", "1")))

	// A non-empty directory in place of the temp log cannot be removed
	require.NoError(t, os.MkdirAll(filepath.Join(TempPath(dir), "blocker"), 0755))
	require.ErrorIs(t, w.Rotate(), ErrRotate)

	require.ErrorIs(t, w.Append(command.Set("b", "2")), ErrRotate)
	require.ErrorIs(t, w.Rotate(), ErrRotate)
	_, err := w.Replay(func(command.Command) error { return nil })
	require.ErrorIs(t, err, ErrRotate)

	require.NoError(t, w.Close())
	require.ErrorIs(t, w.Append(command.Set("c", "3")), ErrClosed)
}
