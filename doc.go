// Package runtimekit provisions versioned runtime archives: it fetches
// an artifact from a remote source, stores it in a content-addressed
// cache keyed by filename and checksum, and extracts it into a stable
// directory — safely, even when several unrelated processes share the
// same cache directory.
//
// # Quick Start
//
// Provision a runtime described by a metadata document and return the
// path of its entry point:
//
//	c, err := runtimekit.NewClient(runtimekit.WithCacheDir("/var/cache/runtimes"))
//	if err != nil {
//	    return err
//	}
//	f := httpfetch.New("https://artifacts.example.com")
//	entry, err := c.Provision(ctx, meta.Descriptor{
//	    Filename:  "jre-21-linux-x64.zip",
//	    Checksum:  "9f86d081884c7d65...",
//	    EntryPath: "bin/java",
//	}, f)
//
// # Concurrency
//
// The cache publishes entries atomically, and extraction is coordinated
// with an advisory file lock so that at most one process unpacks a given
// archive; everyone else reuses the finished directory. Concurrent calls
// within one process are additionally deduplicated.
//
// # Safety
//
// Archives are untrusted input. Every entry's resolved path is verified
// to stay inside the destination directory before anything is written
// (see the archive package).
package runtimekit
