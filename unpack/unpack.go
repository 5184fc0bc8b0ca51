// Package unpack coordinates archive extraction across independent
// processes sharing one cache directory.
//
// The coordinator guarantees at-most-one extraction per destination: the
// destination directory either does not exist or holds a complete
// extraction. Mutual exclusion uses an advisory lock on a sentinel file
// next to the archive, so coordination works across OS processes, not
// just goroutines. A process killed while holding the lock releases it
// automatically (flock semantics); its leftover sentinel file does not
// block later callers.
package unpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/provis/runtimekit/archive"
)

const (
	// DestSuffix is appended to the archive path to name the destination
	// directory.
	DestSuffix = "_unzip"

	// LockSuffix is appended to the archive path to name the lock
	// sentinel file.
	LockSuffix = "_unzip.lock"

	defaultLockRetries = 10
	defaultLockBackoff = 200 * time.Millisecond
)

// ErrLockTimeout is returned when the extraction lock cannot be acquired
// within the retry budget.
var ErrLockTimeout = errors.New("unpack: lock timeout")

// ExtractFunc unpacks an archive into a directory. It must only write
// inside destDir.
type ExtractFunc func(src, destDir string) (string, error)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithExtractor sets the extraction function.
// The default extracts with the archive package, accepting all entries.
func WithExtractor(f ExtractFunc) Option {
	return func(c *Coordinator) {
		c.extract = f
	}
}

// WithLogger sets a logger for the coordinator.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithLockRetries sets the number of lock acquisition attempts.
func WithLockRetries(n int) Option {
	return func(c *Coordinator) {
		c.retries = n
	}
}

// WithLockBackoff sets the base backoff between lock attempts.
// Attempt n waits n times this duration.
func WithLockBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		c.backoff = d
	}
}

// Coordinator ensures each archive is extracted exactly once per
// destination, even when several processes race on the same cache root.
type Coordinator struct {
	extract ExtractFunc
	logger  *slog.Logger
	retries int
	backoff time.Duration
}

// NewCoordinator creates a coordinator with the given options.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		extract: func(src, destDir string) (string, error) {
			return archive.Extract(src, destDir)
		},
		retries: defaultLockRetries,
		backoff: defaultLockBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dest returns the destination directory for an archive path.
func Dest(archivePath string) string {
	return archivePath + DestSuffix
}

// EnsureExtracted returns the directory holding the archive's extracted
// contents, extracting it first if no process has done so yet.
//
// Extraction happens in a fresh temporary directory next to the
// destination and becomes visible through a single rename, so readers
// never observe a partial extraction. The lock sentinel is removed on
// every exit from the locked section.
func (c *Coordinator) EnsureExtracted(ctx context.Context, archivePath string) (string, error) {
	dest := Dest(archivePath)
	if dirExists(dest) {
		return dest, nil
	}

	lockPath := archivePath + LockSuffix
	fl := flock.New(lockPath)
	if err := c.acquire(ctx, fl, dest); err != nil {
		return "", err
	}
	defer func() {
		_ = fl.Unlock()
		_ = os.Remove(lockPath)
	}()

	// Recheck under the lock: a racing process may have finished first.
	if dirExists(dest) {
		c.log().Debug("destination created by concurrent process", "dest", dest)
		return dest, nil
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(archivePath), filepath.Base(archivePath)+"-extract-")
	if err != nil {
		return "", fmt.Errorf("create extraction dir: %w", err)
	}

	c.log().Info("extracting archive", "archive", archivePath, "dest", dest)
	if _, err := c.extract(archivePath, tmpDir); err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("extract %s: %w", archivePath, err)
	}

	if err := os.Rename(tmpDir, dest); err != nil {
		os.RemoveAll(tmpDir)
		if dirExists(dest) {
			return dest, nil
		}
		return "", fmt.Errorf("publish extraction %s: %w", dest, err)
	}

	return dest, nil
}

// acquire attempts the advisory lock with bounded, growing backoff:
// attempt n sleeps n*backoff before retrying, and the budget is exhausted
// after the configured number of attempts.
func (c *Coordinator) acquire(ctx context.Context, fl *flock.Flock, dest string) error {
	for attempt := 1; attempt <= c.retries; attempt++ {
		locked, err := fl.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", fl.Path(), err)
		}
		if locked {
			return nil
		}

		c.log().Debug("extraction lock busy", "lock", fl.Path(), "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}
	return fmt.Errorf("%w: %s after %d attempts", ErrLockTimeout, dest, c.retries)
}

func (c *Coordinator) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
