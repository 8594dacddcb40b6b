package bithenge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bithenge/bithenge/internal/diag"
	"github.com/stretchr/testify/require"
)

func TestNodeFromSourceFileScheme(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	node, err := NodeFromSource("file:" + path)
	require.NoError(t, err)
	require.Equal(t, "\x01\x02\x03", mustReadAll(t, node.(Blob)))
}

func TestNodeFromSourceNoSchemeFallsBackToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("hi"), 0o644))

	node, err := NodeFromSource(path)
	require.NoError(t, err)
	require.Equal(t, "hi", mustReadAll(t, node.(Blob)))
}

func TestNodeFromSourceFileMissing(t *testing.T) {
	_, err := NodeFromSource("file:/no/such/path/here")
	require.Error(t, err)
	require.Equal(t, diag.ENOENT, diag.CodeOf(err))
}

func TestNodeFromSourceFileUnreadable(t *testing.T) {
	dir := t.TempDir()
	_, err := NodeFromSource("file:" + dir)
	require.Error(t, err)
	require.Equal(t, diag.EIO, diag.CodeOf(err))
}

func TestNodeFromSourceHexScheme(t *testing.T) {
	node, err := NodeFromSource("hex:01ff")
	require.NoError(t, err)
	require.Equal(t, "\x01\xff", mustReadAll(t, node.(Blob)))
}

func TestNodeFromSourceHexOddLength(t *testing.T) {
	_, err := NodeFromSource("hex:abc")
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestNodeFromSourceHexInvalidChars(t *testing.T) {
	_, err := NodeFromSource("hex:zz")
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}

func TestNodeFromSourceBlockSchemeNotSupported(t *testing.T) {
	_, err := NodeFromSource("block:disk0")
	require.Error(t, err)
	require.Equal(t, diag.ENOTSUP, diag.CodeOf(err))
}

func TestNodeFromSourceUnknownScheme(t *testing.T) {
	_, err := NodeFromSource("ftp:example.com")
	require.Error(t, err)
	require.Equal(t, diag.EINVAL, diag.CodeOf(err))
}
