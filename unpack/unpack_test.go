package unpack_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/provis/runtimekit/internal/testutil"
	"github.com/provis/runtimekit/unpack"
)

func writeArchive(tb testing.TB, dir string) string {
	tb.Helper()
	return testutil.WriteZip(tb, dir, "jre.zip", []testutil.ZipEntry{
		{Name: "bin/java", Data: []byte("#!/bin/sh\n")},
	})
}

func TestEnsureExtracted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	c := unpack.NewCoordinator()
	dest, err := c.EnsureExtracted(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, src+"_unzip", dest)
	assert.FileExists(t, filepath.Join(dest, "bin", "java"))
	assert.NoFileExists(t, src+"_unzip.lock", "sentinel must not persist")
}

func TestEnsureExtractedIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	var extractions atomic.Int64
	c := unpack.NewCoordinator(unpack.WithExtractor(func(archivePath, destDir string) (string, error) {
		extractions.Add(1)
		return destDir, os.WriteFile(filepath.Join(destDir, "marker"), []byte("1"), 0o644)
	}))

	first, err := c.EnsureExtracted(context.Background(), src)
	require.NoError(t, err)
	second, err := c.EnsureExtracted(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, extractions.Load(), "second call must not extract")
}

func TestEnsureExtractedConcurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	var extractions atomic.Int64
	newCoordinator := func() *unpack.Coordinator {
		return unpack.NewCoordinator(
			unpack.WithLockBackoff(5*time.Millisecond),
			unpack.WithExtractor(func(archivePath, destDir string) (string, error) {
				extractions.Add(1)
				// Widen the race window.
				time.Sleep(10 * time.Millisecond)
				return destDir, os.WriteFile(filepath.Join(destDir, "marker"), []byte("1"), 0o644)
			}),
		)
	}

	var g errgroup.Group
	dests := make([]string, 8)
	for i := range dests {
		i := i
		g.Go(func() error {
			dest, err := newCoordinator().EnsureExtracted(context.Background(), src)
			dests[i] = dest
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, dest := range dests {
		assert.Equal(t, src+"_unzip", dest)
	}
	assert.EqualValues(t, 1, extractions.Load(), "exactly one caller extracts")
	assert.NoFileExists(t, src+"_unzip.lock")
}

func TestEnsureExtractedLockTimeout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	// Hold the sentinel lock for the whole retry budget.
	holder := flock.New(src + "_unzip.lock")
	require.NoError(t, holder.Lock())
	defer holder.Unlock()

	c := unpack.NewCoordinator(
		unpack.WithLockRetries(3),
		unpack.WithLockBackoff(time.Millisecond),
	)
	_, err := c.EnsureExtracted(context.Background(), src)
	require.ErrorIs(t, err, unpack.ErrLockTimeout)
	assert.Contains(t, err.Error(), src+"_unzip")
	assert.NoDirExists(t, src+"_unzip", "destination must not be created on timeout")
}

func TestEnsureExtractedExtractorFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	extractErr := errors.New("corrupt archive")
	c := unpack.NewCoordinator(unpack.WithExtractor(func(archivePath, destDir string) (string, error) {
		return "", extractErr
	}))

	_, err := c.EnsureExtracted(context.Background(), src)
	require.ErrorIs(t, err, extractErr)

	assert.NoDirExists(t, src+"_unzip", "failed extraction must not publish")
	assert.NoFileExists(t, src+"_unzip.lock", "sentinel removed on failure")

	// No abandoned temp directories either.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "jre.zip", entries[0].Name())
}

func TestEnsureExtractedContextCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	holder := flock.New(src + "_unzip.lock")
	require.NoError(t, holder.Lock())
	defer holder.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := unpack.NewCoordinator(unpack.WithLockBackoff(50 * time.Millisecond))
	_, err := c.EnsureExtracted(ctx, src)
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnsureExtractedStaleSentinel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := writeArchive(t, dir)

	// A crashed process leaves the sentinel file behind but no lock (the
	// OS released it). Later callers must proceed.
	require.NoError(t, os.WriteFile(src+"_unzip.lock", nil, 0o644))

	c := unpack.NewCoordinator()
	dest, err := c.EnsureExtracted(context.Background(), src)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "bin", "java"))
	assert.NoFileExists(t, src+"_unzip.lock")
}

func TestDest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/cache/jre.zip_unzip", unpack.Dest("/cache/jre.zip"))
}
