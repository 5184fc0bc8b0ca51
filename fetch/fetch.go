// Package fetch defines the capability used to materialize remote
// artifacts on disk.
//
// Implementations live in subpackages: httpfetch downloads from an HTTP
// endpoint, ocifetch pulls from an OCI registry. The cache invokes a
// Fetcher only on a miss and never retries it.
package fetch

import "context"

// Fetcher materializes the remote artifact identified by name at dest.
//
// On success dest contains the complete artifact. On failure dest may be
// absent or partial; callers treat any leftover file as unusable and
// discard it.
type Fetcher interface {
	Fetch(ctx context.Context, name, dest string) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, name, dest string) error

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, name, dest string) error {
	return f(ctx, name, dest)
}
