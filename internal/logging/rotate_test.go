package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingFile_RotatesWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	rf, err := OpenRotatingFile(path, 10, 2)
	require.NoError(t, err)
	defer rf.Close()

	_, err = rf.Write([]byte("12345678"))
	require.NoError(t, err)
	_, err = rf.Write([]byte("abcdef"))
	require.NoError(t, err)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(current))

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(backup))
}

func TestRotatingFile_KeepsAtMostMaxBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := OpenRotatingFile(path, 4, 2)
	require.NoError(t, err)
	defer rf.Close()

	for _, chunk := range []string{"aaaa", "bbbb", "cccc", "dddd"} {
		_, err := rf.Write([]byte(chunk))
		require.NoError(t, err)
	}

	assertFile(t, path, "dddd")
	assertFile(t, path+".1", "cccc")
	assertFile(t, path+".2", "bbbb")
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingFile_OversizedRecordGoesToEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	rf, err := OpenRotatingFile(path, 4, 0)
	require.NoError(t, err)
	defer rf.Close()

	n, err := rf.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assertFile(t, path, "0123456789")
}

func TestRotatingFile_WriteAfterClose(t *testing.T) {
	rf, err := OpenRotatingFile(filepath.Join(t.TempDir(), "app.log"), 100, 1)
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	_, err = rf.Write([]byte("x"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestOpenRotatingFile_Validation(t *testing.T) {
	_, err := OpenRotatingFile("", 10, 1)
	assert.Error(t, err)

	_, err = OpenRotatingFile(filepath.Join(t.TempDir(), "a.log"), 0, 1)
	assert.Error(t, err)
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}
