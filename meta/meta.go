// Package meta handles the runtime metadata document served by the
// artifact source.
//
// The document is a flat JSON object of string values. The fields the
// core consumes are the artifact filename, its sha256 checksum, and the
// relative path of the entry point inside the extracted tree; all other
// fields pass through untouched.
package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Document keys consumed by Descriptor.
const (
	KeyFilename  = "filename"
	KeyChecksum  = "checksum"
	KeyEntryPath = "entryPath"

	// legacyEntryPathKey is accepted as an alias for KeyEntryPath; older
	// metadata endpoints use it.
	legacyEntryPathKey = "javaPath"
)

// ErrIncomplete is returned when a document is missing required fields.
var ErrIncomplete = errors.New("meta: incomplete document")

// Document is a flat key/value metadata document.
type Document map[string]string

// Parse decodes a JSON object of string values.
func Parse(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("meta: parse document: %w", err)
	}
	return doc, nil
}

// Descriptor identifies what to fetch and what to resolve after
// extraction.
type Descriptor struct {
	// Filename is the artifact's remote name.
	Filename string

	// Checksum is the artifact's sha256 checksum, lowercase hex.
	Checksum string

	// EntryPath is the slash-separated relative path of the entry point
	// inside the extracted tree.
	EntryPath string
}

// Descriptor extracts the artifact descriptor from the document.
// Missing fields are reported together in the error.
func (d Document) Descriptor() (Descriptor, error) {
	desc := Descriptor{
		Filename:  d[KeyFilename],
		Checksum:  d[KeyChecksum],
		EntryPath: d[KeyEntryPath],
	}
	if desc.EntryPath == "" {
		desc.EntryPath = d[legacyEntryPathKey]
	}

	var missing []string
	if desc.Filename == "" {
		missing = append(missing, KeyFilename)
	}
	if desc.Checksum == "" {
		missing = append(missing, KeyChecksum)
	}
	if desc.EntryPath == "" {
		missing = append(missing, KeyEntryPath)
	}
	if len(missing) > 0 {
		return Descriptor{}, fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return desc, nil
}

// Query builds the metadata endpoint query parameters for a platform.
func Query(osName, arch string) url.Values {
	return url.Values{
		"os":   []string{osName},
		"arch": []string{arch},
	}
}
