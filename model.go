// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/woozymasta/pathrules"
)

// Magic identifies a pak archive. It is stored little-endian at offset 0.
const Magic uint32 = 0x5A6F12E1

// Internal binary layout and format limits.
const (
	headerBaseSize = 25    // magic + version + flags + index offset + index size
	hashSize       = 32    // BLAKE3 digest size
	maxPathLen     = 4096  // max entry path length in bytes
	maxMountLen    = 1024  // max mount point length in bytes
	maxEntryCount  = 1<<24 // sanity bound for index entry count

	// maxCompressionRatio bounds decoded size per stored byte of a compressed entry.
	maxCompressionRatio = 1 << 16
	// minRatioLimit is the decoded size always accepted for compressed entries.
	minRatioLimit       = 1 << 20
	// decodePrealloc caps buffer capacity reserved before decoding.
	decodePrealloc      = 4 << 20

	flagIndexEncrypted uint8 = 1 << 0
)

// Default packer tuning values.
const (
	DefaultWriteBuffer     = 4 * 1024 * 1024
	DefaultMinCompressSize = 512
	DefaultMaxCompressSize = 64 * 1024 * 1024
	DefaultMountPoint      = "../../../"
	// DefaultMaxEntrySize is the largest decoded entry a reader accepts by default.
	DefaultMaxEntrySize    = 4 << 30
)

// VersionMajor identifies on-disk layout revisions. Values are ordered.
type VersionMajor uint32

// Known layout revisions.
const (
	// VersionUnknown is never written; reading it is a version error.
	VersionUnknown VersionMajor = 0
	// VersionInitial has records without content hashes.
	VersionInitial VersionMajor = 1
	// VersionContentHash adds optional per-entry BLAKE3 content hashes.
	VersionContentHash VersionMajor = 2
	// VersionIndexHash adds a BLAKE3 hash of the index payload to the header.
	VersionIndexHash VersionMajor = 3

	// VersionLatest is the newest layout this package reads and writes.
	VersionLatest = VersionIndexHash
)

// String returns the short name of the version, e.g. "V3".
func (v VersionMajor) String() string {
	switch v {
	case VersionInitial:
		return "V1"
	case VersionContentHash:
		return "V2"
	case VersionIndexHash:
		return "V3"
	default:
		return fmt.Sprintf("V%d(unknown)", uint32(v))
	}
}

// ParseVersion parses a version name such as "V2", "v2" or "2".
func ParseVersion(name string) (VersionMajor, error) {
	switch name {
	case "V1", "v1", "1", "initial":
		return VersionInitial, nil
	case "V2", "v2", "2", "content_hash":
		return VersionContentHash, nil
	case "V3", "v3", "3", "index_hash", "latest":
		return VersionIndexHash, nil
	default:
		return VersionUnknown, &EnumError{Type: "VersionMajor", Value: name}
	}
}

// hasContentHash reports whether records carry the optional content hash.
func (v VersionMajor) hasContentHash() bool {
	return v >= VersionContentHash
}

// hasIndexHash reports whether header carries the index payload hash.
func (v VersionMajor) hasIndexHash() bool {
	return v >= VersionIndexHash
}

// headerSize returns the fixed header size for the version.
func (v VersionMajor) headerSize() int {
	if v.hasIndexHash() {
		return headerBaseSize + hashSize
	}

	return headerBaseSize
}

// EntryInfo describes a single parsed pak entry.
type EntryInfo struct {
	// Hash is BLAKE3 of decompressed content; nil when not stored.
	Hash *[hashSize]byte `json:"hash,omitempty" yaml:"hash,omitempty"`
	// Path is the entry path as stored in archive index, relative to mount point.
	Path string `json:"path" yaml:"path"`
	// Offset is absolute byte offset of entry payload.
	Offset uint64 `json:"offset" yaml:"offset"`
	// StoredSize is payload size after compression and before cipher padding.
	StoredSize uint64 `json:"stored_size" yaml:"stored_size"`
	// Size is decompressed content size.
	Size uint64 `json:"size" yaml:"size"`
	// Compression is the codec used for this entry.
	Compression Compression `json:"compression" yaml:"compression"`
	// Encrypted reports whether payload is AES encrypted.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// IsCompressed reports whether entry payload needs a codec to decode.
func (e *EntryInfo) IsCompressed() bool {
	return e.Compression != CompressionNone
}

// diskSize returns bytes occupied in archive including cipher padding.
func (e *EntryInfo) diskSize() uint64 {
	if e.Encrypted {
		return alignBlock(e.StoredSize)
	}

	return e.StoredSize
}

// Header is the parsed fixed-size archive header.
type Header struct {
	// IndexHash is BLAKE3 of index payload plaintext (V3+).
	IndexHash [hashSize]byte `json:"-" yaml:"-"`
	// Version is the stored layout revision.
	Version VersionMajor `json:"version" yaml:"version"`
	// IndexOffset is absolute offset of index payload.
	IndexOffset uint64 `json:"index_offset" yaml:"index_offset"`
	// IndexSize is stored index payload size (padded when encrypted).
	IndexSize uint64 `json:"index_size" yaml:"index_size"`
	// IndexEncrypted reports whether the index payload is encrypted.
	IndexEncrypted bool `json:"index_encrypted,omitempty" yaml:"index_encrypted,omitempty"`
}

// Input describes one source stream to be packed into a pak entry.
type Input struct {
	// Open returns raw source stream for this entry.
	Open func() (io.ReadCloser, error) `json:"-" yaml:"-"`
	// Path is destination path inside pak, relative to mount point.
	Path string `json:"path" yaml:"path"`
	// SizeHint is expected size in bytes (zero when unknown).
	SizeHint int64 `json:"size_hint,omitempty" yaml:"size_hint,omitempty"`
}

// EntryOptions configures how one entry is stored by Writer.Add.
type EntryOptions struct {
	// Compression is the codec applied to entry content.
	Compression Compression `json:"compression,omitempty" yaml:"compression,omitempty"`
	// Encrypt encrypts entry payload with writer key.
	Encrypt bool `json:"encrypt,omitempty" yaml:"encrypt,omitempty"`
}

// WriterOptions configures Writer behavior.
type WriterOptions struct {
	// Key is required when EncryptIndex is set or entries request encryption.
	Key *Key `json:"-" yaml:"-"`
	// Codecs dispatches compression; nil means DefaultCodecs().
	Codecs *CodecSet `json:"-" yaml:"-"`
	// MountPoint is written to index; empty means DefaultMountPoint.
	MountPoint string `json:"mount_point,omitempty" yaml:"mount_point,omitempty"`
	// Version is layout revision to write; zero means VersionLatest.
	Version VersionMajor `json:"version,omitempty" yaml:"version,omitempty"`
	// WriterBufferSize is buffered writer size in bytes.
	WriterBufferSize int `json:"writer_buffer_size,omitempty" yaml:"writer_buffer_size,omitempty"`
	// EncryptIndex encrypts the index payload with Key.
	EncryptIndex bool `json:"encrypt_index,omitempty" yaml:"encrypt_index,omitempty"`
	// NoContentHash disables per-entry content hashes (V2+).
	NoContentHash bool `json:"no_content_hash,omitempty" yaml:"no_content_hash,omitempty"`
	// UTF16Paths stores mount point and paths as UTF-16 strings.
	UTF16Paths bool `json:"utf16_paths,omitempty" yaml:"utf16_paths,omitempty"`
}

// WriteResult contains writer output statistics.
type WriteResult struct {
	// WrittenEntries is number of entries written to archive.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// DataSize is total payload bytes written (including cipher padding).
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total index bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// RawBytes is total decompressed content bytes accepted.
	RawBytes int64 `json:"raw_bytes,omitempty" yaml:"raw_bytes,omitempty"`
	// CompressedEntries is number of entries written with a codec.
	CompressedEntries int `json:"compressed_entries,omitempty" yaml:"compressed_entries,omitempty"`
	// EncryptedEntries is number of entries written encrypted.
	EncryptedEntries int `json:"encrypted_entries,omitempty" yaml:"encrypted_entries,omitempty"`
}

// PackEntryProgress contains one completed entry write event from pack flow.
type PackEntryProgress struct {
	// Path is entry path written to archive.
	Path string `json:"path" yaml:"path"`
	// Offset is payload offset in resulting archive.
	Offset uint64 `json:"offset" yaml:"offset"`
	// StoredSize is stored payload size in bytes.
	StoredSize uint64 `json:"stored_size" yaml:"stored_size"`
	// Size is decompressed content size.
	Size uint64 `json:"size" yaml:"size"`
	// Compression is codec used for the entry.
	Compression Compression `json:"compression,omitempty" yaml:"compression,omitempty"`
	// CompressionCandidate reports whether compression rules selected this input entry.
	CompressionCandidate bool `json:"compression_candidate,omitempty" yaml:"compression_candidate,omitempty"`
}

// PackOptions configures Pack behavior.
type PackOptions struct {
	// OnEntryDone is called after one entry is fully written to archive payload.
	OnEntryDone func(entry PackEntryProgress) `json:"-" yaml:"-"`
	// Writer holds archive-level options (mount point, key, version).
	Writer WriterOptions `json:"writer,omitzero" yaml:"writer,omitzero"`
	// Compress defines ordered path rules for compression candidate selection.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// Compression is codec applied to compression candidates.
	Compression Compression `json:"compression,omitempty" yaml:"compression,omitempty"`
	// MinCompressSize disables compression for entries smaller than this size.
	MinCompressSize int64 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// MaxCompressSize disables compression for entries larger than this size.
	MaxCompressSize int64 `json:"max_compress_size,omitempty" yaml:"max_compress_size,omitempty"`
	// EncryptEntries encrypts every entry payload with Writer.Key.
	EncryptEntries bool `json:"encrypt_entries,omitempty" yaml:"encrypt_entries,omitempty"`
}

// PackResult contains pack output statistics.
type PackResult struct {
	WriteResult
	// SkippedCompressionEntries is number of rule-selected entries stored raw by size window.
	SkippedCompressionEntries int `json:"skipped_compression_entries,omitempty" yaml:"skipped_compression_entries,omitempty"`
	// Duration is end-to-end pack duration.
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
}

// ReaderOptions configures reader parse behavior.
type ReaderOptions struct {
	// Key decrypts encrypted index and entries.
	Key *Key `json:"-" yaml:"-"`
	// Codecs dispatches decompression; nil means DefaultCodecs().
	Codecs *CodecSet `json:"-" yaml:"-"`
	// Version is the newest layout the reader accepts; zero means VersionLatest.
	Version VersionMajor `json:"version,omitempty" yaml:"version,omitempty"`
	// MaxEntrySize rejects entries whose recorded decoded size is larger; zero means DefaultMaxEntrySize.
	MaxEntrySize int64 `json:"max_entry_size,omitempty" yaml:"max_entry_size,omitempty"`
	// SkipHashCheck disables verification of stored content hashes.
	SkipHashCheck bool `json:"skip_hash_check,omitempty" yaml:"skip_hash_check,omitempty"`
	// EntryPathPrefix limits listing helpers to entries under this path.
	EntryPathPrefix string `json:"entry_path_prefix,omitempty" yaml:"entry_path_prefix,omitempty"`
	// EntryCompression limits listing helpers to entries stored with these codecs.
	EntryCompression []Compression `json:"entry_compression,omitempty" yaml:"entry_compression,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(entry EntryInfo, written int64, outputPath string) `json:"-" yaml:"-"`
	// Logger receives debug records for written and skipped entries.
	Logger *slog.Logger `json:"-" yaml:"-"`
	// StripPrefix is removed from mount point + path; nil means the mount point.
	StripPrefix *string `json:"strip_prefix,omitempty" yaml:"strip_prefix,omitempty"`
	// Entries limits extraction to selected metadata list; nil means all parsed entries.
	Entries []EntryInfo `json:"-" yaml:"-"`
	// MaxWorkers is number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
	// Force allows extraction into a non-empty directory.
	Force bool `json:"force,omitempty" yaml:"force,omitempty"`
	// SanitizeNames rewrites entry names to filesystem-safe output paths.
	SanitizeNames bool `json:"sanitize_names,omitempty" yaml:"sanitize_names,omitempty"`
}

// ExtractResult contains extraction statistics.
type ExtractResult struct {
	// Written is number of entries written to disk.
	Written int `json:"written" yaml:"written"`
	// Skipped is number of entries not written because of per-entry failures.
	Skipped int `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Bytes is total decoded bytes written.
	Bytes int64 `json:"bytes" yaml:"bytes"`
}

// applyDefaults fills zero-valued writer options with defaults.
func (opts *WriterOptions) applyDefaults() {
	if opts.WriterBufferSize < 4096 {
		opts.WriterBufferSize = DefaultWriteBuffer
	}

	if opts.MountPoint == "" {
		opts.MountPoint = DefaultMountPoint
	}

	if opts.Version == VersionUnknown {
		opts.Version = VersionLatest
	}

	if opts.Codecs == nil {
		opts.Codecs = DefaultCodecs()
	}
}

// applyDefaults fills zero-valued pack options with defaults.
func (opts *PackOptions) applyDefaults() {
	opts.Writer.applyDefaults()

	if opts.MinCompressSize <= 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.MaxCompressSize <= 0 || opts.MaxCompressSize <= opts.MinCompressSize {
		opts.MaxCompressSize = DefaultMaxCompressSize
	}

	if opts.Compression == CompressionNone && len(opts.Compress) > 0 {
		opts.Compression = CompressionZlib
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionExclude
	}
}

// applyDefaults fills zero-valued reader options with defaults.
func (opts *ReaderOptions) applyDefaults() {
	if opts.Version == VersionUnknown {
		opts.Version = VersionLatest
	}

	if opts.Codecs == nil {
		opts.Codecs = DefaultCodecs()
	}

	if opts.MaxEntrySize <= 0 {
		opts.MaxEntrySize = DefaultMaxEntrySize
	}
}
