// Package archive extracts runtime archives into a directory tree.
//
// Every entry's resolved path is checked against the destination root
// before any filesystem mutation, so archives with crafted entry names
// ("zip-slip") cannot write outside the destination. Supported formats
// are zip, tar.gz and tar.zst, selected by filename.
package archive
