// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"
	"os"
)

// ReadHeader opens a pak and returns only the fixed header without loading the index.
func ReadHeader(path string) (Header, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return Header{}, err
	}
	defer func() { _ = f.Close() }()

	return ReadHeaderFromReaderAt(f, size)
}

// ReadHeaderFromReaderAt reads only the fixed header from a random-access source.
func ReadHeaderFromReaderAt(ra io.ReaderAt, size int64) (Header, error) {
	if ra == nil {
		return Header{}, ErrNilReader
	}

	return readHeader(ra, size, VersionLatest)
}

// ListEntries opens a pak and returns entry metadata without payload reads.
func ListEntries(path string, opts ReaderOptions) ([]EntryInfo, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return ListEntriesFromReaderAt(f, size, opts)
}

// ListEntriesFromReaderAt parses entry metadata from a random-access source.
// EntryPathPrefix and EntryCompression in opts narrow the result.
func ListEntriesFromReaderAt(ra io.ReaderAt, size int64, opts ReaderOptions) ([]EntryInfo, error) {
	r, err := NewReader(ra, size, opts)
	if err != nil {
		return nil, err
	}

	return FilterEntries(r.idx.entries, opts.EntryPathPrefix, opts.EntryCompression...), nil
}

// openFileWithSize opens a file and returns a handle plus current size.
func openFileWithSize(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open pak: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat: %w", err)
	}

	return f, fi.Size(), nil
}
