// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/zeebo/blake3"
)

// index is the parsed archive index: mount point plus ordered entries.
type index struct {
	// byPath maps stored entry path to position in entries.
	byPath map[string]int
	// mountPoint is the logical prefix shared by all entry paths.
	mountPoint string
	// entries are kept in stored order.
	entries []EntryInfo
}

// lookup resolves stored path, falling back to mount-prefixed form.
func (idx *index) lookup(path string) (int, bool) {
	if i, ok := idx.byPath[path]; ok {
		return i, true
	}

	if idx.mountPoint != "" {
		if rel, ok := strings.CutPrefix(path, idx.mountPoint); ok {
			i, ok := idx.byPath[rel]
			return i, ok
		}
	}

	return 0, false
}

// readIndex loads, decrypts, verifies and decodes the index payload described by h.
func readIndex(ra io.ReaderAt, size int64, h Header, key *Key, maxEntrySize int64) (*index, error) {
	if h.IndexEncrypted && key == nil {
		return nil, ErrEncrypted
	}

	if h.IndexSize > uint64(maxEntryCount)*(maxPathLen+64) {
		return nil, &UnsupportedOrEncryptedError{
			Detail: "index: ",
			Err:    fmt.Errorf("%w: index size %d", ErrSizeOverflow, h.IndexSize),
		}
	}

	payload := make([]byte, h.IndexSize)
	if _, err := ra.ReadAt(payload, int64(h.IndexOffset)); err != nil && //nolint:gosec // validated against size in readHeader
		!(errors.Is(err, io.EOF) && h.IndexOffset+h.IndexSize == uint64(size)) { //nolint:gosec // size is non-negative
		return nil, fmt.Errorf("read index: %w", err)
	}

	if h.IndexEncrypted {
		plain, err := Decrypt(key, payload)
		if err != nil {
			return nil, err
		}

		payload = plain
	}

	verified := false
	if h.Version.hasIndexHash() {
		if blake3.Sum256(payload) != h.IndexHash {
			return nil, &UnsupportedOrEncryptedError{Detail: "index: ", Err: ErrHashMismatch}
		}

		verified = true
	}

	idx, err := decodeIndex(payload, h.Version)
	if err != nil {
		// Without a verified hash, a wrong key yields garbage that fails anywhere.
		if !verified && h.IndexEncrypted {
			return nil, &UnsupportedOrEncryptedError{Detail: "index: ", Err: err}
		}

		var structural *UnsupportedOrEncryptedError
		if errors.As(err, &structural) {
			return nil, err
		}

		return nil, fmt.Errorf("decode index: %w", err)
	}

	if err := validateEntryRanges(idx.entries, int64(h.Version.headerSize()), size, maxEntrySize); err != nil {
		return nil, err
	}

	return idx, nil
}

// decodeIndex parses plaintext index payload.
// Truncation and bad counts are reported as UnsupportedOrEncryptedError;
// field-level failures keep their own type.
func decodeIndex(payload []byte, version VersionMajor) (*index, error) {
	d := &byteDecoder{buf: payload}
	structural := func(what string, err error) error {
		return &UnsupportedOrEncryptedError{Detail: "index: ", Err: fmt.Errorf("%s: %w", what, err)}
	}

	mount, err := d.fstring(maxMountLen)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrSizeOverflow) {
			return nil, structural("mount point", err)
		}

		return nil, fmt.Errorf("mount point: %w", err)
	}

	count, err := d.u32()
	if err != nil {
		return nil, structural("entry count", err)
	}

	// Each record is at least 4+8+8+8+1+1 bytes.
	const minRecordSize = 30
	if count > maxEntryCount || uint64(count)*minRecordSize > uint64(d.remaining()) {
		return nil, structural("entry count", fmt.Errorf("%w: %d entries", ErrSizeOverflow, count))
	}

	idx := &index{
		mountPoint: mount,
		entries:    make([]EntryInfo, 0, count),
		byPath:     make(map[string]int, count),
	}

	for i := uint32(0); i < count; i++ {
		entry, err := decodeRecord(d, version)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrSizeOverflow) {
				return nil, structural(fmt.Sprintf("record %d", i), err)
			}

			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		if err := validateStoredPath(mount, entry.Path); err != nil {
			return nil, err
		}

		if _, dup := idx.byPath[entry.Path]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntryPath, entry.Path)
		}

		idx.byPath[entry.Path] = len(idx.entries)
		idx.entries = append(idx.entries, entry)
	}

	// Encrypted payloads carry zero padding after the last record.
	if rest := payload[d.off:]; len(bytes.Trim(rest, "\x00")) != 0 {
		return nil, structural("trailing data", fmt.Errorf("%d unexpected bytes", len(rest)))
	}

	return idx, nil
}

// decodeRecord parses one index record.
func decodeRecord(d *byteDecoder, version VersionMajor) (EntryInfo, error) {
	var e EntryInfo

	path, err := d.fstring(maxPathLen)
	if err != nil {
		return e, err
	}

	e.Path = path
	if e.Offset, err = d.u64(); err != nil {
		return e, err
	}

	if e.StoredSize, err = d.u64(); err != nil {
		return e, err
	}

	if e.Size, err = d.u64(); err != nil {
		return e, err
	}

	tag, err := d.u8()
	if err != nil {
		return e, err
	}

	if e.Compression, err = compressionFromTag(tag); err != nil {
		return e, err
	}

	if e.Encrypted, err = d.boolean(); err != nil {
		return e, err
	}

	if !version.hasContentHash() {
		return e, nil
	}

	hasHash, err := d.boolean()
	if err != nil || !hasHash {
		return e, err
	}

	raw, err := d.take(hashSize)
	if err != nil {
		return e, err
	}

	var sum [hashSize]byte
	copy(sum[:], raw)
	e.Hash = &sum
	return e, nil
}

// validateStoredPath enforces that stored paths are non-empty and relative to the mount point.
func validateStoredPath(mount, path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidEntryPath)
	}

	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) ||
		hasWindowsAbsDrivePrefix(path) || strings.IndexByte(path, 0) >= 0 {
		return &PrefixMismatchError{Prefix: mount, Path: path}
	}

	return nil
}

// validateEntryRanges checks every entry payload lies within [dataStart, size)
// and that its recorded decoded size is plausible.
func validateEntryRanges(entries []EntryInfo, dataStart int64, size int64, maxEntrySize int64) error {
	for i := range entries {
		offset := entries[i].Offset
		if offset < uint64(dataStart) { //nolint:gosec // header size is small and positive
			return fmt.Errorf("%w: entry %s offset before data start", ErrInvalidEntryOffset, entries[i].Path)
		}

		end := offset + entries[i].diskSize()
		if end < offset || end > uint64(size) { //nolint:gosec // size is non-negative
			return fmt.Errorf("%w: entry %s payload out of file bounds", ErrInvalidEntryOffset, entries[i].Path)
		}

		if err := validateEntrySize(&entries[i], maxEntrySize); err != nil {
			return err
		}
	}

	return nil
}

// validateEntrySize rejects decoded sizes above maxEntrySize, plain entries whose
// sizes disagree, and compressed entries beyond maxCompressionRatio.
func validateEntrySize(e *EntryInfo, maxEntrySize int64) error {
	if e.Size > uint64(maxEntrySize) { //nolint:gosec // maxEntrySize is positive after defaults
		return fmt.Errorf("%w: entry %s size %d exceeds limit %d", ErrInvalidEntrySize, e.Path, e.Size, maxEntrySize)
	}

	if !e.IsCompressed() {
		if e.Size != e.StoredSize {
			return fmt.Errorf("%w: entry %s size %d, stored %d", ErrInvalidEntrySize, e.Path, e.Size, e.StoredSize)
		}

		return nil
	}

	limit := uint64(minRatioLimit)
	if e.StoredSize <= math.MaxUint64/maxCompressionRatio {
		limit = max(limit, e.StoredSize*maxCompressionRatio)
	} else {
		limit = math.MaxUint64
	}

	if e.Size > limit {
		return fmt.Errorf("%w: entry %s size %d from %d stored bytes", ErrInvalidEntrySize, e.Path, e.Size, e.StoredSize)
	}

	return nil
}

// encodeIndex serializes mount point and entries into plaintext index payload.
func encodeIndex(mount string, entries []EntryInfo, version VersionMajor, utf16Paths bool) ([]byte, error) {
	if len(entries) > maxEntryCount {
		return nil, fmt.Errorf("%w: %d entries", ErrSizeOverflow, len(entries))
	}

	e := &byteEncoder{buf: make([]byte, 0, 64+len(entries)*96)}
	if err := e.fstring(mount, utf16Paths); err != nil {
		return nil, fmt.Errorf("mount point: %w", err)
	}

	e.u32(uint32(len(entries))) //nolint:gosec // bounded by maxEntryCount
	for i := range entries {
		entry := &entries[i]
		if err := e.fstring(entry.Path, utf16Paths); err != nil {
			return nil, fmt.Errorf("entry %s: %w", entry.Path, err)
		}

		e.u64(entry.Offset)
		e.u64(entry.StoredSize)
		e.u64(entry.Size)
		e.u8(uint8(entry.Compression))
		e.boolean(entry.Encrypted)

		if !version.hasContentHash() {
			continue
		}

		e.boolean(entry.Hash != nil)
		if entry.Hash != nil {
			e.buf = append(e.buf, entry.Hash[:]...)
		}
	}

	return e.buf, nil
}
