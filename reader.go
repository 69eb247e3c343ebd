// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Reader provides read-only access to a parsed pak archive.
// A Reader only exists once header and index are validated; it is safe for
// concurrent Read calls.
type Reader struct {
	// ra is the underlying random-access reader used for payload reads.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// idx is the immutable parsed index.
	idx *index
	// key decrypts encrypted entries; nil when none was provided.
	key *Key
	// codecs dispatches entry decompression.
	codecs *CodecSet
	// header is the parsed fixed header.
	header Header
	// size is total source size in bytes.
	size int64
	// maxEntrySize bounds recorded decoded entry sizes.
	maxEntrySize int64
	// mu guards closed state and close operation.
	mu sync.Mutex
	// skipHash disables content hash verification.
	skipHash bool
	// closed reports whether Close was already called.
	closed bool
}

// Open opens pak file by path and parses header and index.
func Open(path string) (*Reader, error) {
	return OpenWithOptions(path, ReaderOptions{})
}

// OpenWithOptions opens pak file by path and parses header and index using explicit reader options.
func OpenWithOptions(path string, opts ReaderOptions) (*Reader, error) {
	f, size, err := openFileWithSize(path)
	if err != nil {
		return nil, err
	}

	r, err := NewReader(f, size, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReader parses pak from existing ReaderAt and known size.
// The ReaderAt is borrowed; Close does not close it.
func NewReader(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	opts.applyDefaults()

	h, err := readHeader(ra, size, opts.Version)
	if err != nil {
		return nil, err
	}

	idx, err := readIndex(ra, size, h, opts.Key, opts.MaxEntrySize)
	if err != nil {
		return nil, err
	}

	if opts.Key == nil {
		for i := range idx.entries {
			if idx.entries[i].Encrypted {
				return nil, fmt.Errorf("%w: entry %s", ErrEncrypted, idx.entries[i].Path)
			}
		}
	}

	return &Reader{
		ra:           ra,
		idx:          idx,
		key:          opts.Key,
		codecs:       opts.Codecs,
		header:       h,
		size:         size,
		maxEntrySize: opts.MaxEntrySize,
		skipHash:     opts.SkipHashCheck,
	}, nil
}

// Entries returns a copy of parsed entries in stored order.
func (r *Reader) Entries() []EntryInfo {
	if r == nil || r.idx == nil {
		return nil
	}

	entries := make([]EntryInfo, len(r.idx.entries))
	copy(entries, r.idx.entries)
	return entries
}

// Len returns number of entries in the index.
func (r *Reader) Len() int {
	if r == nil || r.idx == nil {
		return 0
	}

	return len(r.idx.entries)
}

// MountPoint returns the logical prefix all entry paths are relative to.
func (r *Reader) MountPoint() string {
	if r == nil || r.idx == nil {
		return ""
	}

	return r.idx.mountPoint
}

// Version returns the stored layout revision.
func (r *Reader) Version() VersionMajor {
	if r == nil {
		return VersionUnknown
	}

	return r.header.Version
}

// Header returns the parsed fixed header.
func (r *Reader) Header() Header {
	if r == nil {
		return Header{}
	}

	return r.header
}

// IndexEncrypted reports whether the index payload was stored encrypted.
func (r *Reader) IndexEncrypted() bool {
	return r != nil && r.header.IndexEncrypted
}

// Lookup resolves an entry by stored path or by mount point + path.
func (r *Reader) Lookup(path string) (EntryInfo, error) {
	if r == nil || r.idx == nil {
		return EntryInfo{}, ErrNilReader
	}

	i, ok := r.idx.lookup(path)
	if !ok {
		return EntryInfo{}, &MissingEntryError{Path: path}
	}

	return r.idx.entries[i], nil
}

// Close closes the underlying file if reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}

	return nil
}

// checkOpen reports ErrClosed after Close.
func (r *Reader) checkOpen() error {
	if r == nil || r.ra == nil {
		return ErrNilReader
	}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return nil
}
