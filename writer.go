// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math"
	"sync"
	"unicode/utf8"

	"github.com/zeebo/blake3"
)

var (
	// defaultPackWriterPool reuses default-sized bufio writers between writers.
	defaultPackWriterPool = sync.Pool{
		New: func() any {
			return bufio.NewWriterSize(io.Discard, DefaultWriteBuffer)
		},
	}
	// defaultPackCopyBufferPool reuses payload copy buffers between writers.
	defaultPackCopyBufferPool = sync.Pool{
		New: func() any {
			return new([packCopyBufferSize]byte)
		},
	}
)

const (
	// packCopyBufferSize is per-writer temporary buffer used by streaming payload copy.
	packCopyBufferSize = 64 * 1024
)

// Writer builds a new pak archive on an io.WriteSeeker.
// Entries are written as they are added; Finalize writes the index and
// patches the header. A Writer is not safe for concurrent use.
type Writer struct {
	out            io.WriteSeeker
	w              *bufio.Writer
	releaseWriter  func()
	copyBuf        []byte
	releaseCopyBuf func()
	seen           map[string]struct{}
	entries        []EntryInfo
	opts           WriterOptions
	result         WriteResult
	// err is sticky once the sink holds bytes not accounted to any entry.
	err error
	// base is the sink position of the header; offsets are relative to it.
	base int64
	// offset is the archive-relative position of the next payload byte.
	offset    uint64
	finalized bool
}

// NewWriter starts a new archive at the current position of out.
// A placeholder header is written immediately.
func NewWriter(out io.WriteSeeker, opts WriterOptions) (*Writer, error) {
	if out == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()
	if opts.Version > VersionLatest {
		return nil, &VersionError{Used: VersionLatest, Version: opts.Version}
	}

	if opts.EncryptIndex && opts.Key == nil {
		return nil, fmt.Errorf("%w: index encryption requested", ErrEncrypted)
	}

	if len(opts.MountPoint) > maxMountLen {
		return nil, fmt.Errorf("%w: mount point length %d", ErrSizeOverflow, len(opts.MountPoint))
	}

	if !utf8.ValidString(opts.MountPoint) {
		return nil, ErrUTF8
	}

	base, err := out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek start: %w", err)
	}

	wr := &Writer{
		out:     out,
		opts:    opts,
		base:    base,
		seen:    make(map[string]struct{}),
		entries: make([]EntryInfo, 0, 64),
	}

	wr.w, wr.releaseWriter = acquirePackWriter(out, opts.WriterBufferSize)
	wr.copyBuf, wr.releaseCopyBuf = acquirePackCopyBuffer()

	header := encodeHeader(Header{Version: opts.Version})
	if _, err := wr.w.Write(header); err != nil {
		wr.release()
		return nil, fmt.Errorf("write header: %w", err)
	}

	wr.offset = uint64(len(header))
	return wr, nil
}

// Add stores data under path. The entry is compressed with opts.Compression
// even when the codec output is not smaller than data.
func (wr *Writer) Add(path string, data []byte, opts EntryOptions) error {
	_, err := wr.add(path, data, opts)
	return err
}

// AddReader stores content read from r under path. Uncompressed plain entries
// are streamed; others are buffered in memory for the codec.
func (wr *Writer) AddReader(path string, r io.Reader, opts EntryOptions) error {
	_, err := wr.addReader(path, r, opts)
	return err
}

// Len returns number of entries added so far.
func (wr *Writer) Len() int {
	if wr == nil {
		return 0
	}

	return len(wr.entries)
}

// Finalize writes the index, patches the header at the archive start and
// returns write statistics. The sink is left positioned at archive end.
func (wr *Writer) Finalize() (*WriteResult, error) {
	if err := wr.checkWritable(); err != nil {
		return nil, err
	}

	wr.finalized = true
	defer wr.release()

	payload, err := encodeIndex(wr.opts.MountPoint, wr.entries, wr.opts.Version, wr.opts.UTF16Paths)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}

	if wr.opts.EncryptIndex {
		padded := make([]byte, alignBlock(uint64(len(payload))))
		copy(padded, payload)
		payload = padded
	}

	h := Header{
		Version:        wr.opts.Version,
		IndexOffset:    wr.offset,
		IndexSize:      uint64(len(payload)),
		IndexEncrypted: wr.opts.EncryptIndex,
	}
	if h.Version.hasIndexHash() {
		h.IndexHash = blake3.Sum256(payload)
	}

	if wr.opts.EncryptIndex {
		if payload, err = Encrypt(wr.opts.Key, payload); err != nil {
			return nil, fmt.Errorf("encrypt index: %w", err)
		}
	}

	if _, err := wr.w.Write(payload); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}

	if err := wr.w.Flush(); err != nil {
		return nil, fmt.Errorf("flush index: %w", err)
	}

	end, err := wr.out.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("seek after index: %w", err)
	}

	if _, err := wr.out.Seek(wr.base, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to header: %w", err)
	}

	if _, err := wr.out.Write(encodeHeader(h)); err != nil {
		return nil, fmt.Errorf("patch header: %w", err)
	}

	if _, err := wr.out.Seek(end, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}

	wr.result.WrittenEntries = len(wr.entries)
	wr.result.IndexSize = int64(len(payload))
	res := wr.result
	return &res, nil
}

// add validates, encodes and writes one in-memory entry.
func (wr *Writer) add(path string, data []byte, opts EntryOptions) (EntryInfo, error) {
	stored, err := wr.reservePath(path, opts)
	if err != nil {
		return EntryInfo{}, err
	}

	entry := EntryInfo{
		Path:        stored,
		Offset:      wr.offset,
		Size:        uint64(len(data)),
		Compression: opts.Compression,
		Encrypted:   opts.Encrypt,
	}

	if wr.opts.Version.hasContentHash() && !wr.opts.NoContentHash {
		sum := blake3.Sum256(data)
		entry.Hash = &sum
	}

	payload, err := wr.opts.Codecs.Compress(opts.Compression, data)
	if err != nil {
		return EntryInfo{}, fmt.Errorf("entry %s: %w", stored, err)
	}

	entry.StoredSize = uint64(len(payload))
	if opts.Encrypt {
		if payload, err = Encrypt(wr.opts.Key, payload); err != nil {
			return EntryInfo{}, fmt.Errorf("encrypt entry %s: %w", stored, err)
		}
	}

	if _, err := wr.w.Write(payload); err != nil {
		return EntryInfo{}, wr.fail(fmt.Errorf("write payload %s: %w", stored, err))
	}

	wr.commit(entry, int64(len(payload)))
	return entry, nil
}

// addReader streams plain entries and buffers the rest.
func (wr *Writer) addReader(path string, r io.Reader, opts EntryOptions) (EntryInfo, error) {
	if r == nil {
		return EntryInfo{}, ErrNilReader
	}

	if opts.Compression != CompressionNone || opts.Encrypt {
		data, err := readPayloadBounded(r, math.MaxInt64, wr.copyBuf)
		if err != nil {
			return EntryInfo{}, fmt.Errorf("read input %s: %w", path, err)
		}

		return wr.add(path, data, opts)
	}

	stored, err := wr.reservePath(path, opts)
	if err != nil {
		return EntryInfo{}, err
	}

	entry := EntryInfo{
		Path:   stored,
		Offset: wr.offset,
	}

	dst := io.Writer(wr.w)
	var hasher *blake3.Hasher
	if wr.opts.Version.hasContentHash() && !wr.opts.NoContentHash {
		hasher = blake3.New()
		dst = io.MultiWriter(wr.w, hasher)
	}

	n, err := copyPayloadBounded(dst, r, math.MaxInt64, wr.copyBuf)
	if err != nil {
		err = fmt.Errorf("stream input %s: %w", stored, err)
		if n > 0 {
			return EntryInfo{}, wr.fail(err)
		}

		return EntryInfo{}, err
	}

	entry.Size = uint64(n)
	entry.StoredSize = uint64(n)
	if hasher != nil {
		var sum [hashSize]byte
		copy(sum[:], hasher.Sum(nil))
		entry.Hash = &sum
	}

	wr.commit(entry, n)
	return entry, nil
}

// reservePath normalizes path and checks writer state and uniqueness.
// The path is recorded as used only when the entry is committed.
func (wr *Writer) reservePath(path string, opts EntryOptions) (string, error) {
	if err := wr.checkWritable(); err != nil {
		return "", err
	}

	if !opts.Compression.Valid() {
		return "", &EnumError{Type: "Compression", Value: opts.Compression.String()}
	}

	if opts.Encrypt && wr.opts.Key == nil {
		return "", fmt.Errorf("%w: entry %s requests encryption", ErrEncrypted, path)
	}

	stored, err := normalizeArchiveEntryPath(path)
	if err != nil {
		return "", err
	}

	if err := validateStoredPath(wr.opts.MountPoint, stored); err != nil {
		return "", err
	}

	if _, dup := wr.seen[stored]; dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateEntryPath, stored)
	}

	return stored, nil
}

// commit records written entry and advances running offset.
func (wr *Writer) commit(entry EntryInfo, written int64) {
	wr.seen[entry.Path] = struct{}{}
	wr.entries = append(wr.entries, entry)
	wr.offset += uint64(written) //nolint:gosec // written is non-negative

	wr.result.DataSize += written
	wr.result.RawBytes += int64(entry.Size) //nolint:gosec // bounded by input length
	if entry.IsCompressed() {
		wr.result.CompressedEntries++
	}

	if entry.Encrypted {
		wr.result.EncryptedEntries++
	}
}

// checkWritable reports nil writer, finalized and failed state.
func (wr *Writer) checkWritable() error {
	if wr == nil || wr.out == nil {
		return ErrNilWriter
	}

	if wr.finalized {
		return ErrFinalized
	}

	if wr.err != nil {
		return fmt.Errorf("%w: %w", ErrWriterFailed, wr.err)
	}

	return nil
}

// fail makes err sticky: the sink holds bytes no entry accounts for, so
// later Add and Finalize calls would produce a corrupt archive.
func (wr *Writer) fail(err error) error {
	wr.err = err
	wr.release()
	return err
}

// release returns pooled buffers.
func (wr *Writer) release() {
	if wr.releaseWriter != nil {
		wr.releaseWriter()
		wr.releaseWriter = nil
	}

	if wr.releaseCopyBuf != nil {
		wr.releaseCopyBuf()
		wr.releaseCopyBuf = nil
		wr.copyBuf = nil
	}
}

// acquirePackWriter returns a buffered writer and release callback.
func acquirePackWriter(out io.Writer, size int) (*bufio.Writer, func()) {
	if size == DefaultWriteBuffer {
		w := defaultPackWriterPool.Get().(*bufio.Writer) //nolint:forcetypeassert // pool contains only *bufio.Writer
		w.Reset(out)

		return w, func() {
			w.Reset(io.Discard)
			defaultPackWriterPool.Put(w)
		}
	}

	return bufio.NewWriterSize(out, size), func() {}
}

// acquirePackCopyBuffer returns reusable payload copy buffer and release callback.
func acquirePackCopyBuffer() ([]byte, func()) {
	arr := defaultPackCopyBufferPool.Get().(*[packCopyBufferSize]byte) //nolint:forcetypeassert // pool contains only fixed-size buffers
	buf := arr[:]

	return buf, func() {
		defaultPackCopyBufferPool.Put(arr)
	}
}

// readPayloadBounded reads whole payload into memory with strict max-size enforcement.
func readPayloadBounded(src io.Reader, limit int64, copyBuf []byte) ([]byte, error) {
	var dst bytes.Buffer
	written, err := copyPayloadBounded(&dst, src, limit, copyBuf)
	if err != nil {
		return nil, err
	}

	if int64(dst.Len()) != written {
		return nil, fmt.Errorf("short read into memory (%d/%d)", dst.Len(), written)
	}

	return dst.Bytes(), nil
}

// copyPayloadBounded streams payload from src to dst and enforces strict size limit.
func copyPayloadBounded(dst io.Writer, src io.Reader, limit int64, buf []byte) (int64, error) {
	if dst == nil {
		return 0, ErrNilWriter
	}
	if src == nil {
		return 0, ErrNilReader
	}
	if limit < 0 {
		return 0, ErrSizeOverflow
	}
	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	var written int64
	emptyReads := 0
	for written < limit {
		chunkSize := len(buf)
		if remaining := limit - written; int64(chunkSize) > remaining {
			chunkSize = int(remaining)
		}

		n, readErr := src.Read(buf[:chunkSize])
		if n > 0 {
			emptyReads = 0
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)

			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if n == 0 && readErr == nil {
			emptyReads++
			if emptyReads > 100 {
				return written, io.ErrNoProgress
			}

			continue
		}

		if readErr != nil {
			if readErr == io.EOF {
				break
			}

			return written, readErr
		}
	}

	// Consumed exactly the limit: probe one extra byte to ensure source is not longer.
	if written == limit {
		var probe [1]byte
		n, err := src.Read(probe[:])
		if n > 0 {
			return written, ErrSizeOverflow
		}
		if err != nil && err != io.EOF {
			return written, err
		}
	}

	return written, nil
}
