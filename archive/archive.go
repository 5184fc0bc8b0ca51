package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// copyBufSize is the buffer size used when streaming entry contents.
const copyBufSize = 32 * 1024

// Entry describes an archive entry presented to filters.
type Entry struct {
	// Name is the entry's slash-separated path within the archive.
	Name string

	// IsDir reports whether the entry is a directory.
	IsDir bool
}

// FilterFunc selects which entries are extracted.
// Returning false skips the entry entirely, including directory creation.
type FilterFunc func(Entry) bool

// Option configures an extraction.
type Option func(*config)

type config struct {
	filter FilterFunc
}

// WithFilter restricts extraction to entries the filter accepts.
// The default accepts every entry.
func WithFilter(f FilterFunc) Option {
	return func(c *config) {
		c.filter = f
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		filter: func(Entry) bool { return true },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Extract unpacks an archive into destDir, choosing the format from the
// filename: .zip, .tar.gz/.tgz, or .tar.zst. It returns destDir.
func Extract(src, destDir string, opts ...Option) (string, error) {
	name := strings.ToLower(filepath.Base(src))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return Unzip(src, destDir, opts...)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return UntarGz(src, destDir, opts...)
	case strings.HasSuffix(name, ".tar.zst"):
		return UntarZst(src, destDir, opts...)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(src))
}

// Unzip extracts a zip archive into destDir, creating it if needed.
// It returns destDir.
func Unzip(src, destDir string, opts ...Option) (string, error) {
	cfg := newConfig(opts)

	r, err := zip.OpenReader(src)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", src, err)
	}
	defer r.Close()

	if err := mkdirAll(destDir); err != nil {
		return "", err
	}
	root := filepath.Clean(destDir)

	buf := make([]byte, copyBufSize)
	for _, f := range r.File {
		isDir := f.FileInfo().IsDir()
		if !cfg.filter(Entry{Name: f.Name, IsDir: isDir}) {
			continue
		}

		target, err := resolve(root, f.Name)
		if err != nil {
			return "", err
		}

		if isDir {
			if err := mkdirAll(target); err != nil {
				return "", err
			}
			continue
		}

		if err := mkdirAll(filepath.Dir(target)); err != nil {
			return "", err
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		err = writeFile(target, rc, 0o644, buf)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract entry %s: %w", f.Name, err)
		}
	}

	return destDir, nil
}

// resolve joins name onto root and verifies the result stays inside root.
// The check runs per entry, before any filesystem mutation.
func resolve(root, name string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(name))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, name)
	}
	return target, nil
}

// mkdirAll creates dir and its parents, mapping failures to ErrDirCreate.
func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w %s: %v", ErrDirCreate, dir, err)
	}
	return nil
}

// writeFile streams r to path, closing the file on every exit path.
func writeFile(path string, r io.Reader, mode os.FileMode, buf []byte) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.CopyBuffer(out, r, buf); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
