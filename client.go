package runtimekit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/provis/runtimekit/archive"
	"github.com/provis/runtimekit/cache"
	"github.com/provis/runtimekit/fetch"
	"github.com/provis/runtimekit/meta"
	"github.com/provis/runtimekit/unpack"
)

// Client provisions runtime archives into a shared cache directory.
//
// A Client is safe for concurrent use; concurrent Provision calls for the
// same artifact are deduplicated in-process, and the underlying cache and
// coordinator handle races with other processes.
type Client struct {
	cacheDir string
	logger   *slog.Logger
	filter   archive.FilterFunc

	cache    *cache.Cache
	unpacker *unpack.Coordinator
	group    singleflight.Group
}

// NewClient creates a client with the given options.
// WithCacheDir is required.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.cacheDir == "" {
		return nil, fmt.Errorf("runtimekit: cache dir is required")
	}

	fc, err := cache.New(c.cacheDir, cache.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.cache = fc

	var extractOpts []archive.Option
	if c.filter != nil {
		extractOpts = append(extractOpts, archive.WithFilter(c.filter))
	}
	c.unpacker = unpack.NewCoordinator(
		unpack.WithLogger(c.logger),
		unpack.WithExtractor(func(src, destDir string) (string, error) {
			return archive.Extract(src, destDir, extractOpts...)
		}),
	)

	return c, nil
}

// Provision returns the absolute path of the descriptor's entry point,
// fetching, verifying, caching, and extracting the artifact as needed.
//
// The operation is all-or-nothing: a failure at any stage returns an
// error and no partial result.
func (c *Client) Provision(ctx context.Context, desc meta.Descriptor, f fetch.Fetcher) (string, error) {
	key := cache.Key{Filename: desc.Filename, Checksum: desc.Checksum}

	v, err, _ := c.group.Do(key.Checksum+"/"+key.Filename, func() (any, error) {
		archivePath, err := c.cache.Get(ctx, key, f)
		if err != nil {
			return nil, err
		}

		destDir, err := c.unpacker.EnsureExtracted(ctx, archivePath)
		if err != nil {
			return nil, err
		}

		return resolveEntry(destDir, desc.EntryPath)
	})
	if err != nil {
		return "", err
	}

	entry := v.(string)
	c.log().Debug("provisioned runtime", "filename", desc.Filename, "entry", entry)
	return entry, nil
}

// resolveEntry joins the entry path onto the extraction directory,
// applying the same containment rule as the extractor, and verifies the
// entry exists.
func resolveEntry(destDir, entryPath string) (string, error) {
	root := filepath.Clean(destDir)
	entry := filepath.Join(root, filepath.FromSlash(entryPath))
	if entry != root && !strings.HasPrefix(entry, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrEntryEscape, entryPath)
	}
	if _, err := os.Stat(entry); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrEntryMissing, entryPath, err)
	}
	return entry, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger
}
