package runtimekit

import (
	"errors"

	"github.com/provis/runtimekit/archive"
	"github.com/provis/runtimekit/cache"
	"github.com/provis/runtimekit/unpack"
)

// Errors re-exported from subpackages.
var (
	// ErrChecksumMismatch is returned when downloaded content does not
	// match the descriptor's checksum.
	ErrChecksumMismatch = cache.ErrChecksumMismatch

	// ErrInvalidKey is returned when a descriptor's filename or checksum
	// cannot address a cache entry.
	ErrInvalidKey = cache.ErrInvalidKey

	// ErrPathEscape is returned when an archive entry resolves outside
	// the destination directory.
	ErrPathEscape = archive.ErrPathEscape

	// ErrDirCreate is returned when a required directory cannot be
	// created during extraction.
	ErrDirCreate = archive.ErrDirCreate

	// ErrLockTimeout is returned when the extraction lock cannot be
	// acquired within the retry budget.
	ErrLockTimeout = unpack.ErrLockTimeout
)

// Sentinel errors specific to provisioning.
var (
	// ErrEntryEscape is returned when a descriptor's entry path resolves
	// outside the extracted directory.
	ErrEntryEscape = errors.New("runtimekit: entry path escapes extraction directory")

	// ErrEntryMissing is returned when the descriptor's entry path does
	// not exist in the extracted tree.
	ErrEntryMissing = errors.New("runtimekit: entry not found in extracted archive")
)
