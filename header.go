// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// readHeader reads and validates the fixed header at offset 0.
// Magic is checked before anything else, then version against used.
func readHeader(ra io.ReaderAt, size int64, used VersionMajor) (Header, error) {
	var h Header

	var prefix [8]byte
	n, err := ra.ReadAt(prefix[:], 0)
	if n < 4 {
		if err != nil && !errors.Is(err, io.EOF) {
			return h, fmt.Errorf("read header: %w", err)
		}

		// Short sources that already differ from the magic are a mismatch.
		var magic [4]byte
		binary.LittleEndian.PutUint32(magic[:], Magic)
		if n > 0 && !bytes.Equal(prefix[:n], magic[:n]) {
			return h, &MagicError{Found: binary.LittleEndian.Uint32(prefix[0:4])}
		}

		return h, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
	}

	if magic := binary.LittleEndian.Uint32(prefix[0:4]); magic != Magic {
		return h, &MagicError{Found: magic}
	}

	if n < len(prefix) {
		return h, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
	}

	h.Version = VersionMajor(binary.LittleEndian.Uint32(prefix[4:8]))
	if h.Version == VersionUnknown || h.Version > used {
		return h, &VersionError{Used: used, Version: h.Version}
	}

	headerLen := h.Version.headerSize()
	if size < int64(headerLen) {
		return h, fmt.Errorf("read header: %w", io.ErrUnexpectedEOF)
	}

	buf := make([]byte, headerLen)
	if _, err := ra.ReadAt(buf, 0); err != nil && !(errors.Is(err, io.EOF) && size == int64(headerLen)) {
		return h, fmt.Errorf("read header: %w", err)
	}

	flags := buf[8]
	if flags&^flagIndexEncrypted != 0 {
		return h, &UnsupportedOrEncryptedError{Detail: fmt.Sprintf("header flags %#x: ", flags)}
	}

	h.IndexEncrypted = flags&flagIndexEncrypted != 0
	h.IndexOffset = binary.LittleEndian.Uint64(buf[9:17])
	h.IndexSize = binary.LittleEndian.Uint64(buf[17:25])
	if h.Version.hasIndexHash() {
		copy(h.IndexHash[:], buf[25:25+hashSize])
	}

	end := h.IndexOffset + h.IndexSize
	if h.IndexOffset < uint64(headerLen) || end < h.IndexOffset || end > uint64(size) { //nolint:gosec // size is non-negative here
		return h, fmt.Errorf("%w: index range [%d, %d) outside archive of %d bytes", ErrInvalidEntryOffset, h.IndexOffset, end, size)
	}

	if h.IndexEncrypted && h.IndexSize%blockSize != 0 {
		return h, &UnsupportedOrEncryptedError{Detail: "index: ", Err: ErrAES}
	}

	return h, nil
}

// encodeHeader serializes h in its version layout.
func encodeHeader(h Header) []byte {
	buf := make([]byte, h.Version.headerSize())
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Version))

	if h.IndexEncrypted {
		buf[8] = flagIndexEncrypted
	}

	binary.LittleEndian.PutUint64(buf[9:17], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[17:25], h.IndexSize)
	if h.Version.hasIndexHash() {
		copy(buf[25:], h.IndexHash[:])
	}

	return buf
}
