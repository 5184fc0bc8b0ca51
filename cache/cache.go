package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/provis/runtimekit/fetch"
)

const tmpDirName = "_tmp"

// Sentinel errors for cache operations.
var (
	// ErrChecksumMismatch is returned when downloaded content does not
	// match the key's checksum.
	ErrChecksumMismatch = errors.New("cache: checksum mismatch")

	// ErrInvalidKey is returned when a key is empty or unsafe to address.
	ErrInvalidKey = errors.New("cache: invalid key")
)

// Key identifies a unique artifact. Two downloads with the same filename
// but different checksums are distinct entries.
type Key struct {
	// Filename is the artifact's remote name, used as the entry filename.
	Filename string

	// Checksum is the lowercase hex sha256 of the artifact content.
	Checksum string
}

func (k Key) validate() error {
	if k.Filename == "" || k.Checksum == "" {
		return fmt.Errorf("%w: filename and checksum are required", ErrInvalidKey)
	}
	if strings.ContainsAny(k.Filename, `/\`) || k.Filename != filepath.Base(k.Filename) {
		return fmt.Errorf("%w: filename %q contains path elements", ErrInvalidKey, k.Filename)
	}
	if err := digest.NewDigestFromEncoded(digest.SHA256, k.Checksum).Validate(); err != nil {
		return fmt.Errorf("%w: checksum %q: %v", ErrInvalidKey, k.Checksum, err)
	}
	return nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a logger for the cache.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// Cache is a content-addressed file cache rooted at a directory.
type Cache struct {
	root   string
	logger *slog.Logger
}

// New creates a cache rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Cache, error) {
	if root == "" {
		return nil, errors.New("cache root is empty")
	}
	c := &Cache{root: root}
	for _, opt := range opts {
		opt(c)
	}
	if err := os.MkdirAll(filepath.Join(root, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return c, nil
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// Get returns the local path of the artifact identified by key.
//
// On a hit the published path is returned immediately and f is never
// invoked. On a miss, f downloads the artifact to a temporary file inside
// the cache root; the content is verified against key.Checksum and then
// published with a single rename. If another process published the same
// key first, the existing entry wins and the temporary copy is discarded.
func (c *Cache) Get(ctx context.Context, key Key, f fetch.Fetcher) (string, error) {
	if err := key.validate(); err != nil {
		return "", err
	}

	final := filepath.Join(c.root, key.Checksum, key.Filename)
	if fileExists(final) {
		c.log().Debug("cache hit", "filename", key.Filename, "checksum", key.Checksum)
		return final, nil
	}

	tmpPath, err := c.tempPath(key.Filename)
	if err != nil {
		return "", err
	}
	defer os.Remove(tmpPath)

	c.log().Info("downloading artifact", "filename", key.Filename)
	if err := f.Fetch(ctx, key.Filename, tmpPath); err != nil {
		return "", fmt.Errorf("fetch %s: %w", key.Filename, err)
	}

	if err := c.verify(tmpPath, key); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", fmt.Errorf("create cache entry dir: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		// A concurrent publisher may have won the rename. The existing
		// entry is verified content for the same key, so use it.
		if fileExists(final) {
			return final, nil
		}
		return "", fmt.Errorf("publish %s: %w", key.Filename, err)
	}

	c.log().Debug("published cache entry", "path", final)
	return final, nil
}

// verify streams the file through a sha256 digester and compares the
// result with the key's checksum.
func (c *Cache) verify(path string, key Key) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open downloaded file: %w", err)
	}
	defer f.Close()

	digester := digest.SHA256.Digester()
	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return fmt.Errorf("checksum %s: %w", key.Filename, err)
	}

	actual := digester.Digest().Encoded()
	if actual != strings.ToLower(key.Checksum) {
		return fmt.Errorf("%w: %s: expected %s, got %s",
			ErrChecksumMismatch, key.Filename, key.Checksum, actual)
	}
	return nil
}

// tempPath reserves a unique temporary filename inside the cache root so
// the publishing rename stays on one volume.
func (c *Cache) tempPath(filename string) (string, error) {
	f, err := os.CreateTemp(filepath.Join(c.root, tmpDirName), filename+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return path, nil
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
