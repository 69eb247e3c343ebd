// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for pak operations. Use errors.Is in callers.
// Typed errors below match their kind sentinel through errors.Is as well.
var (
	// ErrAES means key material is not a 256-bit AES key.
	ErrAES = errors.New("expect 256 bit AES key as base64 or hex string")
	// ErrCompressionDisabled means the module was built without compression support.
	ErrCompressionDisabled = errors.New("enable the compression feature to read compressed paks")
	// ErrEncryptionDisabled means the module was built without encryption support.
	ErrEncryptionDisabled = errors.New("enable the encryption feature to read encrypted paks")
	// ErrOodleUnsupported means Oodle is not available on this platform or not wired in.
	ErrOodleUnsupported = errors.New(oodleUnsupportedMessage())
	// ErrUTF8 means a stored string is not valid UTF-8.
	ErrUTF8 = errors.New("utf8 conversion")
	// ErrUTF16 means a stored string is not valid UTF-16.
	ErrUTF16 = errors.New("utf16 conversion")
	// ErrNetwork means fetching an optional codec component failed.
	ErrNetwork = errors.New("network fetch failed")
	// ErrEncrypted means the pak needs a key but none was provided.
	ErrEncrypted = errors.New("pak is encrypted but no key was provided")
	// ErrHashMismatch means decoded content does not match its stored hash.
	ErrHashMismatch = errors.New("content hash mismatch")
	// ErrInvalidEntryOffset means an entry byte range is outside the archive.
	ErrInvalidEntryOffset = errors.New("invalid entry offset")
	// ErrInvalidEntrySize means a recorded decoded size is implausible for its stored payload.
	ErrInvalidEntrySize = errors.New("invalid entry size")
	// ErrInvalidEntryPath means an entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrDuplicateEntryPath means two entries share the same logical path.
	ErrDuplicateEntryPath = errors.New("duplicate entry path")
	// ErrFinalized means the writer was already finalized.
	ErrFinalized = errors.New("writer already finalized")
	// ErrWriterFailed means an earlier write left the archive unusable.
	ErrWriterFailed = errors.New("writer failed")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrSizeOverflow means a size does not fit the target integer type.
	ErrSizeOverflow = errors.New("size overflow")
	// ErrEmptyInputs means no inputs provided for pack.
	ErrEmptyInputs = errors.New("no inputs provided for pack")
	// ErrInvalidCompressPattern means one or more compression rules are invalid.
	ErrInvalidCompressPattern = errors.New("invalid compress rules")

	// Kind sentinels matched by the typed errors below.

	// ErrEnum is the kind of EnumError.
	ErrEnum = errors.New("enum conversion")
	// ErrBool is the kind of BoolError.
	ErrBool = errors.New("not a boolean")
	// ErrMagic is the kind of MagicError.
	ErrMagic = errors.New("magic mismatch")
	// ErrVersion is the kind of VersionError.
	ErrVersion = errors.New("version mismatch")
	// ErrDecompression is the kind of DecompressionError.
	ErrDecompression = errors.New("decompression failed")
	// ErrOodleFailed is the kind of OodleFailedError.
	ErrOodleFailed = errors.New("could not load oo2core_9_win64.dll")
	// ErrUnsupportedOrEncrypted is the kind of UnsupportedOrEncryptedError.
	ErrUnsupportedOrEncrypted = errors.New("version unsupported or is encrypted")
	// ErrMissingEntry is the kind of MissingEntryError.
	ErrMissingEntry = errors.New("entry not found")
	// ErrPrefixMismatch is the kind of PrefixMismatchError.
	ErrPrefixMismatch = errors.New("prefix mismatch")
	// ErrWriteOutsideOutput is the kind of WriteOutsideOutputError.
	ErrWriteOutsideOutput = errors.New("write outside of output directory")
	// ErrOutputNotEmpty is the kind of OutputNotEmptyError.
	ErrOutputNotEmpty = errors.New("output directory is not empty")
	// ErrInputNotADirectory is the kind of InputNotADirectoryError.
	ErrInputNotADirectory = errors.New("input is not a directory")
)

// oodleUnsupportedMessage renders platform-specific Oodle gating message.
func oodleUnsupportedMessage() string {
	if runtime.GOOS == "windows" {
		return "enable the oodle feature to read Oodle compressed paks"
	}

	return "Oodle compression only supported on Windows (or WINE)"
}

// EnumError reports a tag or name that is not a member of an enumeration.
type EnumError struct {
	Type  string
	Value string
}

func (e *EnumError) Error() string {
	return fmt.Sprintf("enum conversion: %s has no variant %q", e.Type, e.Value)
}

func (e *EnumError) Is(target error) bool { return target == ErrEnum }

// BoolError reports a boolean byte other than 0 or 1.
type BoolError struct {
	Value uint8
}

func (e *BoolError) Error() string {
	return fmt.Sprintf("got %d, which is not a boolean", e.Value)
}

func (e *BoolError) Is(target error) bool { return target == ErrBool }

// MagicError reports leading bytes that are not the pak magic.
type MagicError struct {
	Found uint32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("found magic of %#x instead of %#x", e.Found, Magic)
}

func (e *MagicError) Is(target error) bool { return target == ErrMagic }

// VersionError reports an archive version the reader does not understand.
type VersionError struct {
	// Used is the maximum version the reader was configured for.
	Used VersionMajor
	// Version is the version stored in the archive.
	Version VersionMajor
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("used version %s but pak is version %s", e.Used, e.Version)
}

func (e *VersionError) Is(target error) bool { return target == ErrVersion }

// DecompressionError reports a codec failure or a content mismatch after decoding.
type DecompressionError struct {
	Compression Compression
	Err         error
}

func (e *DecompressionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s decompression failed", e.Compression)
	}

	return fmt.Sprintf("%s decompression failed: %v", e.Compression, e.Err)
}

func (e *DecompressionError) Is(target error) bool { return target == ErrDecompression }

func (e *DecompressionError) Unwrap() error { return e.Err }

// OodleFailedError reports that the Oodle capability could not be obtained.
type OodleFailedError struct {
	Err error
}

func (e *OodleFailedError) Error() string {
	if e.Err == nil {
		return ErrOodleFailed.Error()
	}

	return fmt.Sprintf("%s: %v", ErrOodleFailed, e.Err)
}

func (e *OodleFailedError) Is(target error) bool { return target == ErrOodleFailed }

func (e *OodleFailedError) Unwrap() error { return e.Err }

// UnsupportedOrEncryptedError reports an index that could not be decoded.
// The cause is either an unknown layout revision or a missing or wrong key;
// the two are not distinguishable from the bytes alone.
type UnsupportedOrEncryptedError struct {
	// Detail is an optional prefix naming what was being decoded.
	Detail string
	Err    error
}

func (e *UnsupportedOrEncryptedError) Error() string {
	msg := e.Detail + "version unsupported or is encrypted (possibly missing --aes-key?)"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *UnsupportedOrEncryptedError) Is(target error) bool {
	return target == ErrUnsupportedOrEncrypted
}

func (e *UnsupportedOrEncryptedError) Unwrap() error { return e.Err }

// MissingEntryError reports a lookup of a path not present in the index.
type MissingEntryError struct {
	Path string
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("No entry found at %s", e.Path)
}

func (e *MissingEntryError) Is(target error) bool { return target == ErrMissingEntry }

// PrefixMismatchError reports a path that is not rooted under the expected prefix.
type PrefixMismatchError struct {
	Prefix string
	Path   string
}

func (e *PrefixMismatchError) Error() string {
	return fmt.Sprintf("Prefix %q does not match path %q", e.Prefix, e.Path)
}

func (e *PrefixMismatchError) Is(target error) bool { return target == ErrPrefixMismatch }

// WriteOutsideOutputError reports an entry whose output path escapes the destination root.
type WriteOutsideOutputError struct {
	Path string
}

func (e *WriteOutsideOutputError) Error() string {
	return fmt.Sprintf("Attempted to write to %q which outside of output directory", e.Path)
}

func (e *WriteOutsideOutputError) Is(target error) bool { return target == ErrWriteOutsideOutput }

// OutputNotEmptyError reports an extraction destination that already has content.
type OutputNotEmptyError struct {
	Path string
}

func (e *OutputNotEmptyError) Error() string {
	return fmt.Sprintf("Output directory is not empty: %q", e.Path)
}

func (e *OutputNotEmptyError) Is(target error) bool { return target == ErrOutputNotEmpty }

// InputNotADirectoryError reports a pack input root that is not a directory.
type InputNotADirectoryError struct {
	Path string
}

func (e *InputNotADirectoryError) Error() string {
	return fmt.Sprintf("Input is not a directory: %q", e.Path)
}

func (e *InputNotADirectoryError) Is(target error) bool { return target == ErrInputNotADirectory }

// ExtractError collects per-entry failures of one extraction run.
type ExtractError struct {
	Errs []error
}

func (e *ExtractError) Error() string {
	switch len(e.Errs) {
	case 0:
		return "extract failed"
	case 1:
		return "extract: " + e.Errs[0].Error()
	default:
		return fmt.Sprintf("extract: %d entries failed, first: %v", len(e.Errs), e.Errs[0])
	}
}

func (e *ExtractError) Unwrap() []error { return e.Errs }
