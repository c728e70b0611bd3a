package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestFilesystemRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(logs.NewTestingLog(t), filepath.Join(dir, "models"))
	require.NoError(t, err)
	fs, ok := s.(*StorageFS)
	require.True(t, ok)

	require.NoError(t, WriteFile(s, "a/b.bin", bytes.NewReader([]byte("hello"))))
	_, err = os.Stat(filepath.Join(fs.Root, "a", "b.bin"))
	require.NoError(t, err)

	content, err := ReadFile(s, "a/b.bin")
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	f, err := s.ReadFile("a/b.bin")
	require.NoError(t, err)
	require.Equal(t, int64(5), f.Size)
	f.Reader.Close()

	require.NoError(t, s.DeleteFile("a/b.bin"))
	_, err = s.ReadFile("a/b.bin")
	require.Error(t, err)
}

func TestFilesystemRejectsParentPaths(t *testing.T) {
	s, err := NewStorageFS(logs.NewTestingLog(t), t.TempDir())
	require.NoError(t, err)
	_, err = s.WriteFile("../escape")
	require.ErrorIs(t, err, ErrInvalidName)
	_, err = s.ReadFile("../escape")
	require.ErrorIs(t, err, ErrInvalidName)
	require.ErrorIs(t, s.DeleteFile("../escape"), ErrInvalidName)
}

func TestOpenRejectsEmptyBucket(t *testing.T) {
	_, err := Open(logs.NewTestingLog(t), "gs://")
	require.ErrorIs(t, err, ErrInvalidName)
}
