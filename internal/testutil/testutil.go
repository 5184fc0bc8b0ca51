// Package testutil provides archive builders and fetcher fakes for tests.
package testutil

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// ZipEntry describes one entry for BuildZip. A Name ending in "/" creates
// a directory entry.
type ZipEntry struct {
	Name string
	Data []byte
}

// BuildZip writes a zip archive containing the given entries and returns
// its bytes. Entry order is preserved.
func BuildZip(tb testing.TB, entries []ZipEntry) []byte {
	tb.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		f, err := w.Create(e.Name)
		require.NoError(tb, err)
		if !strings.HasSuffix(e.Name, "/") {
			_, err = f.Write(e.Data)
			require.NoError(tb, err)
		}
	}
	require.NoError(tb, w.Close())
	return buf.Bytes()
}

// WriteZip writes a zip archive with the given name into dir and returns
// its path.
func WriteZip(tb testing.TB, dir, name string, entries []ZipEntry) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, BuildZip(tb, entries), 0o644))
	return path
}

// WriteTarGz writes a gzip-compressed tar archive into dir and returns its
// path. Keys ending in "/" become directory entries.
func WriteTarGz(tb testing.TB, dir, name string, files map[string][]byte) string {
	tb.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	writeTar(tb, gz, files)
	require.NoError(tb, gz.Close())

	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// WriteTarZst writes a zstd-compressed tar archive into dir and returns
// its path.
func WriteTarZst(tb testing.TB, dir, name string, files map[string][]byte) string {
	tb.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	require.NoError(tb, err)
	writeTar(tb, zw, files)
	require.NoError(tb, zw.Close())

	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func writeTar(tb testing.TB, dst interface{ Write([]byte) (int, error) }, files map[string][]byte) {
	tb.Helper()

	tw := tar.NewWriter(dst)
	for name, data := range files {
		if strings.HasSuffix(name, "/") {
			require.NoError(tb, tw.WriteHeader(&tar.Header{
				Name:     name,
				Typeflag: tar.TypeDir,
				Mode:     0o755,
			}))
			continue
		}
		require.NoError(tb, tw.WriteHeader(&tar.Header{
			Name:     name,
			Typeflag: tar.TypeReg,
			Mode:     0o644,
			Size:     int64(len(data)),
		}))
		_, err := tw.Write(data)
		require.NoError(tb, err)
	}
	require.NoError(tb, tw.Close())
}

// SHA256Hex returns the lowercase hex sha256 of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// BytesFetcher serves fixed content for any requested name and counts
// Fetch invocations.
type BytesFetcher struct {
	Data  []byte
	calls atomic.Int64
}

// Fetch writes the fixed content to dest.
func (f *BytesFetcher) Fetch(_ context.Context, _ string, dest string) error {
	f.calls.Add(1)
	return os.WriteFile(dest, f.Data, 0o644)
}

// Calls reports how many times Fetch was invoked.
func (f *BytesFetcher) Calls() int64 {
	return f.calls.Load()
}

// ErrFetcher fails every Fetch with the given error, optionally leaving a
// partial file behind first.
type ErrFetcher struct {
	Err     error
	Partial []byte
}

// Fetch writes the partial content, if any, then fails.
func (f *ErrFetcher) Fetch(_ context.Context, _ string, dest string) error {
	if len(f.Partial) > 0 {
		if err := os.WriteFile(dest, f.Partial, 0o644); err != nil {
			return err
		}
	}
	if f.Err != nil {
		return f.Err
	}
	return fmt.Errorf("fetch failed")
}
