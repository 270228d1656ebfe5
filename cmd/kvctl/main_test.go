package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-kv/pkg/lsm"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_SetGetRemove(t *testing.T) {
	dir := t.TempDir()

	code, out, _ := runCLI(t, "-data", dir, "set", "greeting", "hello")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "OK")

	code, out, _ = runCLI(t, "-data", dir, "get", "greeting")
	require.Equal(t, 0, code)
	assert.Equal(t, "hello\n", out)

	code, _, _ = runCLI(t, "-data", dir, "rm", "greeting")
	require.Equal(t, 0, code)

	code, out, errOut := runCLI(t, "-data", dir, "get", "greeting")
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "not found")
}

func TestRun_Stats(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, "-data", dir, "set", "a", "1")

	code, out, _ := runCLI(t, "-data", dir, "stats")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "MemTable keys")
	assert.Contains(t, out, "Tables")
	assert.Contains(t, out, "clusokv_tables")
	assert.Contains(t, out, "clusokv_wal_replayed_records_total")
}

func TestRun_ConfigAndInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "kv.yaml")
	cfg := "data_dir: " + dir + "\nflush_threshold: 1\nsegment_size: 1\nsync_writes: false\nlog_level: error\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))

	for _, kv := range [][]string{{"set", "a", "1"}, {"set", "b", "2"}, {"rm", "c"}} {
		code, _, errOut := runCLI(t, append([]string{"-config", cfgPath}, kv...)...)
		require.Equal(t, 0, code, errOut)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var table string
	for _, e := range entries {
		if _, ok := lsm.ParseTableName(e.Name()); ok {
			table = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, table, "flush_threshold 1 must have produced a table")

	code, out, errOut := runCLI(t, "inspect", table)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Sparse index")
	assert.Contains(t, out, `set("a"="1")`)
	assert.Contains(t, out, `set("b"="2")`)
}

func TestRun_InspectCorruptTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "1.table")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	code, _, errOut := runCLI(t, "inspect", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "corrupt sstable")
}

func TestRun_Usage(t *testing.T) {
	dir := t.TempDir()

	tests := [][]string{
		{"-data", dir},
		{"-data", dir, "frobnicate"},
		{"-data", dir, "set", "only-key"},
		{"-data", dir, "inspect"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args[2:], " "), func(t *testing.T) {
			code, _, errOut := runCLI(t, args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, errOut, "Usage: kvctl")
		})
	}
}

func TestRun_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "kv.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("flush_threshold: 0\n"), 0644))

	code, _, errOut := runCLI(t, "-config", cfgPath, "stats")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "config:")
}
