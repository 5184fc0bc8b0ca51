package archive

import "errors"

// Sentinel errors for extraction operations.
var (
	// ErrPathEscape is returned when an archive entry resolves outside the
	// destination directory.
	ErrPathEscape = errors.New("archive: entry escapes destination directory")

	// ErrDirCreate is returned when a required directory cannot be created.
	ErrDirCreate = errors.New("archive: create directory")

	// ErrUnsupportedFormat is returned when the archive format cannot be
	// determined from the filename.
	ErrUnsupportedFormat = errors.New("archive: unsupported format")
)
