package audit

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	t := time.Date(2026, time.October, 14, 9, 5, 3, 0, time.UTC)
	return func() time.Time { return t }
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestFormatLine(t *testing.T) {
	ts := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "[01/02/2026 03:04:05] [info] key = k added", FormatLine(ts, TypeInfo, "key = k added"))
}

func TestFileLogger_AppendsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.log")
	l, err := NewFileLogger(path, WithClock(fixedClock()))
	require.NoError(t, err)

	require.NoError(t, l.Write(TypeInfo, "[127.0.0.1] key = a added"))
	require.NoError(t, l.Write(TypeWarning, "[127.0.0.1] key = a exists"))
	require.NoError(t, l.Write(TypeError, "connection abort"))

	lines := readLines(t, path)
	assert.Equal(t, []string{
		"[10/14/2026 09:05:03] [info] [127.0.0.1] key = a added",
		"[10/14/2026 09:05:03] [warning] [127.0.0.1] key = a exists",
		"[10/14/2026 09:05:03] [error] connection abort",
	}, lines)

	require.NoError(t, l.Close())
}

func TestFileLogger_WrittenThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.log")
	l, err := NewFileLogger(path, WithClock(fixedClock()))
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	require.NoError(t, l.Write(TypeInfo, "first"))

	// visible before Close
	assert.Len(t, readLines(t, path), 1)
}

func TestFileLogger_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.log")
	require.NoError(t, os.WriteFile(path, []byte("previous\n"), 0o644))

	l, err := NewFileLogger(path, WithClock(fixedClock()))
	require.NoError(t, err)
	require.NoError(t, l.Write(TypeInfo, "next"))
	require.NoError(t, l.Close())

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Equal(t, "previous", lines[0])
}

func TestFileLogger_Closed(t *testing.T) {
	l, err := NewFileLogger(filepath.Join(t.TempDir(), "storage.log"))
	require.NoError(t, err)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Write(TypeInfo, "late"), ErrClosed)
}

func TestFileLogger_OpenError(t *testing.T) {
	_, err := NewFileLogger(filepath.Join(t.TempDir(), "missing", "dir", "storage.log"))
	assert.Error(t, err)
}

func TestFileLogger_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.log")
	l, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = l.Write(TypeInfo, "event")
			}
		}()
	}
	wg.Wait()
	require.NoError(t, l.Close())

	assert.Len(t, readLines(t, path), 400)
}

func TestFileLogger_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.log")

	// each line is 31 bytes, so two fit under the threshold
	l, err := NewFileLogger(path, WithClock(fixedClock()), WithRotateSize(64))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Write(TypeInfo, "x"))
	}
	require.NoError(t, l.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	assert.Len(t, readLines(t, path), 1)
	for _, m := range matches {
		assert.Len(t, readLines(t, m), 2)
	}
}

func TestFileLogger_RotationCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storage.log")

	l, err := NewFileLogger(path, WithClock(fixedClock()), WithRotateSize(40), WithCompression(true))
	require.NoError(t, err)

	require.NoError(t, l.Write(TypeInfo, "one"))
	require.NoError(t, l.Write(TypeInfo, "two"))
	require.NoError(t, l.Close())

	archives, err := filepath.Glob(path + ".*.zip")
	require.NoError(t, err)
	require.Len(t, archives, 1)

	plain, err := filepath.Glob(path + ".*[0-9]")
	require.NoError(t, err)
	assert.Empty(t, plain, "uncompressed rotated file should be removed")

	zr, err := zip.OpenReader(archives[0])
	require.NoError(t, err)
	defer func() { _ = zr.Close() }()

	require.Len(t, zr.File, 1)
	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	_ = rc.Close()

	assert.Equal(t, "[10/14/2026 09:05:03] [info] one\n", string(content))
	assert.Equal(t, []string{"[10/14/2026 09:05:03] [info] two"}, readLines(t, path))
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	assert.NoError(t, l.Write(TypeInfo, "ignored"))
	assert.NoError(t, l.Close())
}
