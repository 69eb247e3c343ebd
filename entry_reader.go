// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/zeebo/blake3"
)

// Read returns decoded content for entry metadata obtained from this archive.
// Payload is decrypted, decompressed and checked against the stored hash.
func (r *Reader) Read(info EntryInfo) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	if err := validateEntryRanges([]EntryInfo{info}, int64(r.header.Version.headerSize()), r.size, r.maxEntrySize); err != nil {
		return nil, err
	}

	return r.readPayload(&info)
}

// ReadEntry reads full decoded content of the named entry.
func (r *Reader) ReadEntry(path string) ([]byte, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	info, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}

	return r.readPayload(&info)
}

// OpenEntry opens the named entry for reading.
// Content is decoded and verified before the stream is returned.
func (r *Reader) OpenEntry(path string) (io.ReadCloser, error) {
	data, err := r.ReadEntry(path)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// readPayload runs the decode pipeline for one entry.
func (r *Reader) readPayload(info *EntryInfo) ([]byte, error) {
	diskLen, err := checkedUint64ToInt(info.diskSize())
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", info.Path, err)
	}

	size, err := checkedUint64ToInt(info.Size)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", info.Path, err)
	}

	payload := make([]byte, diskLen)
	sr := io.NewSectionReader(r.ra, int64(info.Offset), int64(diskLen)) //nolint:gosec // range validated against size
	if _, err := io.ReadFull(sr, payload); err != nil {
		return nil, fmt.Errorf("read entry %s: %w", info.Path, err)
	}

	if info.Encrypted {
		plain, err := Decrypt(r.key, payload)
		if err != nil {
			return nil, fmt.Errorf("decrypt entry %s: %w", info.Path, err)
		}

		payload = plain[:info.StoredSize]
	}

	out, err := r.codecs.Decompress(info.Compression, payload, size)
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", info.Path, err)
	}

	if info.Hash != nil && !r.skipHash && blake3.Sum256(out) != *info.Hash {
		return nil, fmt.Errorf("entry %s: %w", info.Path, &DecompressionError{Compression: info.Compression, Err: ErrHashMismatch})
	}

	return out, nil
}

// checkedUint64ToInt converts uint64 to int with platform-safe overflow check.
func checkedUint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, ErrSizeOverflow
	}

	return int(v), nil
}
