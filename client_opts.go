package runtimekit

import (
	"fmt"
	"log/slog"

	"github.com/provis/runtimekit/archive"
)

// Option configures a Client.
type Option func(*Client) error

// WithCacheDir sets the shared cache root. Required.
//
// The directory is created if absent. Several processes may point at the
// same directory; coordination is handled internally.
func WithCacheDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return fmt.Errorf("runtimekit: cache dir is empty")
		}
		c.cacheDir = dir
		return nil
	}
}

// WithLogger sets a logger for the client.
// The logger is propagated to the cache and the extraction coordinator.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithExtractFilter restricts which archive entries are extracted.
// The default extracts every entry.
func WithExtractFilter(f archive.FilterFunc) Option {
	return func(c *Client) error {
		c.filter = f
		return nil
	}
}
