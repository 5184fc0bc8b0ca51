// Package ocifetch implements the fetch capability against an OCI
// registry.
//
// Artifacts are expected to be published as a tagged manifest with a
// single layer holding the archive bytes; the artifact name requested by
// the cache is used as the tag. The content-addressed cache re-verifies
// the downloaded archive's checksum, so a corrupt layer never publishes.
package ocifetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/errcode"
	"oras.land/oras-go/v2/registry/remote/retry"
)

const defaultUserAgent = "runtimekit/1.0"

// Sentinel errors for registry fetches.
var (
	// ErrNotFound is returned when the artifact tag does not exist in the
	// repository.
	ErrNotFound = errors.New("ocifetch: not found")

	// ErrInvalidArtifact is returned when the tagged manifest is not a
	// single-layer artifact.
	ErrInvalidArtifact = errors.New("ocifetch: invalid artifact manifest")
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPlainHTTP uses HTTP instead of HTTPS, for local registries.
func WithPlainHTTP(plain bool) Option {
	return func(f *Fetcher) {
		f.plainHTTP = plain
	}
}

// WithClient replaces the remote client used for registry requests.
func WithClient(client remote.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// Fetcher pulls artifact archives from one OCI repository. It implements
// fetch.Fetcher.
type Fetcher struct {
	repoRef   string
	plainHTTP bool
	client    remote.Client
}

// New creates a fetcher for the given repository reference, e.g.
// "registry.example.com/runtimes/jre". The reference must not carry a
// tag; tags come from the artifact names being fetched.
func New(repoRef string, opts ...Option) (*Fetcher, error) {
	if _, err := remote.NewRepository(repoRef); err != nil {
		return nil, fmt.Errorf("parse repository %q: %w", repoRef, err)
	}
	f := &Fetcher{
		repoRef: repoRef,
		client: &auth.Client{
			Client: retry.DefaultClient,
			Cache:  auth.NewCache(),
			Header: http.Header{
				"User-Agent": []string{defaultUserAgent},
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch resolves name as a tag, reads the manifest, and streams its
// single layer to dest. On failure any partial file at dest is removed.
func (f *Fetcher) Fetch(ctx context.Context, name, dest string) error {
	repo, err := f.repository()
	if err != nil {
		return err
	}

	desc, err := repo.Resolve(ctx, name)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", name, mapError(err))
	}

	manifest, err := fetchManifest(ctx, repo, desc)
	if err != nil {
		return err
	}
	if len(manifest.Layers) != 1 {
		return fmt.Errorf("%w: %d layers, want 1", ErrInvalidArtifact, len(manifest.Layers))
	}

	rc, err := repo.Blobs().Fetch(ctx, manifest.Layers[0])
	if err != nil {
		return fmt.Errorf("fetch layer: %w", mapError(err))
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("download %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

func (f *Fetcher) repository() (*remote.Repository, error) {
	repo, err := remote.NewRepository(f.repoRef)
	if err != nil {
		return nil, fmt.Errorf("parse repository %q: %w", f.repoRef, err)
	}
	repo.PlainHTTP = f.plainHTTP
	repo.Client = f.client
	return repo, nil
}

func fetchManifest(ctx context.Context, repo *remote.Repository, desc ocispec.Descriptor) (ocispec.Manifest, error) {
	rc, err := repo.Manifests().Fetch(ctx, desc)
	if err != nil {
		return ocispec.Manifest{}, fmt.Errorf("fetch manifest: %w", mapError(err))
	}
	defer rc.Close()

	var manifest ocispec.Manifest
	if err := json.NewDecoder(io.LimitReader(rc, desc.Size)).Decode(&manifest); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return manifest, nil
}

// mapError translates ORAS errors into package sentinels where a caller
// can act on them.
func mapError(err error) error {
	if errors.Is(err, errdef.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var errResp *errcode.ErrorResponse
	if errors.As(err, &errResp) && errResp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
