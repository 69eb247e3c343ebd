// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// byteDecoder reads little-endian fields from an in-memory payload.
// Reads past the end return io.ErrUnexpectedEOF.
type byteDecoder struct {
	buf []byte
	off int
}

// remaining returns unread byte count.
func (d *byteDecoder) remaining() int {
	return len(d.buf) - d.off
}

// take returns next n bytes without copying.
func (d *byteDecoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, io.ErrUnexpectedEOF
	}

	out := d.buf[d.off : d.off+n]
	d.off += n
	return out, nil
}

func (d *byteDecoder) u8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

func (d *byteDecoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (d *byteDecoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// boolean reads one byte that must be 0 or 1.
func (d *byteDecoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}

	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &BoolError{Value: v}
	}
}

// fstring reads length-prefixed string: positive length is UTF-8 bytes,
// negative length is UTF-16LE code units; both include a trailing NUL.
func (d *byteDecoder) fstring(maxLen int) (string, error) {
	raw, err := d.u32()
	if err != nil {
		return "", err
	}

	length := int32(raw) //nolint:gosec // sign carries encoding selector
	switch {
	case length == 0:
		return "", nil
	case length > 0:
		if int(length) > maxLen+1 {
			return "", fmt.Errorf("%w: string length %d", ErrSizeOverflow, length)
		}

		b, err := d.take(int(length))
		if err != nil {
			return "", err
		}

		b = bytes.TrimSuffix(b, []byte{0})
		if !utf8.Valid(b) {
			return "", ErrUTF8
		}

		return string(b), nil
	default:
		if length == math.MinInt32 || int(-length) > maxLen+1 {
			return "", fmt.Errorf("%w: string length %d", ErrSizeOverflow, length)
		}

		units := int(-length)
		b, err := d.take(units * 2)
		if err != nil {
			return "", err
		}

		codes := make([]uint16, units)
		for i := range codes {
			codes[i] = binary.LittleEndian.Uint16(b[i*2:])
		}

		if units > 0 && codes[units-1] == 0 {
			codes = codes[:units-1]
		}

		if !validUTF16(codes) {
			return "", ErrUTF16
		}

		return string(utf16.Decode(codes)), nil
	}
}

// validUTF16 reports whether every surrogate is correctly paired.
func validUTF16(codes []uint16) bool {
	for i := 0; i < len(codes); i++ {
		c := codes[i]
		switch {
		case c >= 0xD800 && c < 0xDC00:
			if i+1 >= len(codes) || codes[i+1] < 0xDC00 || codes[i+1] >= 0xE000 {
				return false
			}
			i++
		case c >= 0xDC00 && c < 0xE000:
			return false
		}
	}

	return true
}

// byteEncoder appends little-endian fields to a growing payload.
type byteEncoder struct {
	buf []byte
}

func (e *byteEncoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *byteEncoder) u32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *byteEncoder) u64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *byteEncoder) boolean(v bool) {
	if v {
		e.u8(1)
		return
	}

	e.u8(0)
}

// fstring writes s as NUL-terminated UTF-8, or UTF-16LE when asUTF16 is set.
func (e *byteEncoder) fstring(s string, asUTF16 bool) error {
	if s == "" {
		e.u32(0)
		return nil
	}

	if !utf8.ValidString(s) {
		return ErrUTF8
	}

	if !asUTF16 {
		if len(s)+1 > math.MaxInt32 {
			return ErrSizeOverflow
		}

		e.u32(uint32(len(s) + 1)) //nolint:gosec // bounded above
		e.buf = append(e.buf, s...)
		e.buf = append(e.buf, 0)
		return nil
	}

	codes := utf16.Encode([]rune(s))
	codes = append(codes, 0)
	if len(codes) > math.MaxInt32 {
		return ErrSizeOverflow
	}

	e.u32(uint32(-int32(len(codes)))) //nolint:gosec // bounded above
	for _, c := range codes {
		e.buf = binary.LittleEndian.AppendUint16(e.buf, c)
	}

	return nil
}
