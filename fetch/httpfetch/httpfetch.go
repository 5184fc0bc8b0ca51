// Package httpfetch implements the fetch capability over plain HTTP.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a whole download request.
	DefaultTimeout = 5 * time.Minute

	// DefaultUserAgent is sent with every request.
	DefaultUserAgent = "runtimekit/1.0"

	// DefaultDownloadPath is the endpoint path used by Fetch.
	DefaultDownloadPath = "/runtime/download"

	maxRedirects = 10

	// maxDocumentSize caps FetchString responses; metadata documents are
	// tiny.
	maxDocumentSize = 1 << 20
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithDownloadPath sets the endpoint path used by Fetch.
func WithDownloadPath(path string) Option {
	return func(f *Fetcher) {
		f.downloadPath = path
	}
}

// Fetcher downloads artifacts from an HTTP endpoint. It implements
// fetch.Fetcher. Transport-level retries are deliberately absent: the
// cache invokes a fetcher once per miss.
type Fetcher struct {
	baseURL      string
	downloadPath string
	userAgent    string
	client       *http.Client
}

// New creates a fetcher for the server at baseURL (scheme and host,
// without a trailing slash).
func New(baseURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		downloadPath: DefaultDownloadPath,
		userAgent:    DefaultUserAgent,
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the named artifact to dest. On failure any partial
// file at dest is removed.
func (f *Fetcher) Fetch(ctx context.Context, name, dest string) error {
	u := f.baseURL + f.downloadPath + "?filename=" + url.QueryEscape(name)

	resp, err := f.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
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

// FetchString retrieves a small text document, such as runtime metadata,
// from a path relative to the base URL.
func (f *Fetcher) FetchString(ctx context.Context, path string) (string, error) {
	resp, err := f.get(ctx, f.baseURL+path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(body), nil
}

func (f *Fetcher) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", u, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("request %s: unexpected status %s", u, resp.Status)
	}
	return resp, nil
}
