// Package cache implements a content-addressed file cache shared by
// independent processes.
//
// Entries are keyed by filename and sha256 checksum and laid out as
// <root>/<checksum>/<filename>. A published entry is immutable: its
// content always matches the key's checksum, and hits are served without
// touching the network. Publishing is atomic (temp file + rename within
// the cache root, so the rename never crosses a volume), which keeps
// concurrent publishers of the same key from exposing torn files.
package cache
