package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAll(t *testing.T, w io.WriteCloser, s string) {
	t.Helper()
	_, err := io.WriteString(w, s)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func TestFileSystems_RoundTrip(t *testing.T) {
	cases := map[string]struct {
		fsys FileSystem
		root string
	}{
		"os":     {fsys: OSFileSystem{}, root: t.TempDir()},
		"memory": {fsys: NewMemoryFileSystem(), root: "/sessions"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join(tc.root, "2026-03-02_09-00-00", "Frames")
			require.NoError(t, tc.fsys.MkdirAll(dir, 0755))
			assert.True(t, tc.fsys.Exists(dir))

			w, err := tc.fsys.Create(filepath.Join(dir, "frame_00001.jpg"))
			require.NoError(t, err)
			writeAll(t, w, "b")

			w, err = tc.fsys.Create(filepath.Join(dir, "frame_00000.jpg"))
			require.NoError(t, err)
			writeAll(t, w, "a")

			names, err := tc.fsys.List(dir)
			require.NoError(t, err)
			assert.Equal(t, []string{"frame_00000.jpg", "frame_00001.jpg"}, names)

			table := filepath.Join(dir, "table.csv")
			w, err = tc.fsys.Append(table)
			require.NoError(t, err)
			writeAll(t, w, "header\n")
			w, err = tc.fsys.Append(table)
			require.NoError(t, err)
			writeAll(t, w, "row\n")

			data, err := tc.fsys.ReadFile(table)
			require.NoError(t, err)
			assert.Equal(t, "header\nrow\n", string(data))
		})
	}
}

func TestMemoryFileSystem_MissingParent(t *testing.T) {
	m := NewMemoryFileSystem()
	_, err := m.Create("/nope/frame.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = m.ReadFile("/nope/frame.jpg")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	_, err = m.List("/nope")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestMemoryFileSystem_WriteAfterClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, err := m.Create("plain.txt")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, fs.ErrClosed)
	assert.ErrorIs(t, w.Close(), fs.ErrClosed)
}
