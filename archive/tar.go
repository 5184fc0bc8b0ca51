package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// UntarGz extracts a gzip-compressed tar archive into destDir.
// It returns destDir.
func UntarGz(src, destDir string, opts ...Option) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", src, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("read gzip %s: %w", src, err)
	}
	defer gz.Close()

	return destDir, untar(tar.NewReader(gz), destDir, newConfig(opts))
}

// UntarZst extracts a zstd-compressed tar archive into destDir.
// It returns destDir.
func UntarZst(src, destDir string, opts ...Option) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open archive %s: %w", src, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("read zstd %s: %w", src, err)
	}
	defer zr.Close()

	return destDir, untar(tar.NewReader(zr), destDir, newConfig(opts))
}

// untar walks a tar stream applying the same containment rules as Unzip.
// Symlinks and special entries are skipped: their targets cannot be
// containment-checked at extraction time.
func untar(tr *tar.Reader, destDir string, cfg config) error {
	if err := mkdirAll(destDir); err != nil {
		return err
	}
	root := filepath.Clean(destDir)

	buf := make([]byte, copyBufSize)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		isDir := hdr.Typeflag == tar.TypeDir
		if !cfg.filter(Entry{Name: hdr.Name, IsDir: isDir}) {
			continue
		}

		target, err := resolve(root, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := mkdirAll(target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := mkdirAll(filepath.Dir(target)); err != nil {
				return err
			}
			mode := os.FileMode(hdr.Mode) & 0o777
			if mode == 0 {
				mode = 0o644
			}
			if err := writeFile(target, tr, mode, buf); err != nil {
				return fmt.Errorf("extract entry %s: %w", hdr.Name, err)
			}
		}
	}
}
