// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/woozymasta/lzss"
)

var (
	// zstdOnce guards the shared encoder; EncodeAll is safe for concurrent use.
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdInitErr error

	// zstdDecoderPool reuses streaming decoders so output can be bounded per call.
	zstdDecoderPool sync.Pool
)

// zstdEncoderShared lazily builds the shared zstd encoder.
func zstdEncoderShared() (*zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})

	return zstdEncoder, zstdInitErr
}

// acquireZstdDecoder returns a pooled single-goroutine decoder reset to src.
func acquireZstdDecoder(src io.Reader) (*zstd.Decoder, error) {
	if dec, ok := zstdDecoderPool.Get().(*zstd.Decoder); ok {
		if err := dec.Reset(src); err != nil {
			dec.Close()
			return nil, err
		}

		return dec, nil
	}

	return zstd.NewReader(src, zstd.WithDecoderConcurrency(1))
}

// releaseZstdDecoder detaches dec from its input and returns it to the pool.
func releaseZstdDecoder(dec *zstd.Decoder) {
	if err := dec.Reset(nil); err != nil {
		dec.Close()
		return
	}

	zstdDecoderPool.Put(dec)
}

// compressZlib encodes data as a zlib stream.
func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressZlib decodes a zlib stream of known decoded size.
func decompressZlib(src []byte, size int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()

	return readAllBounded(zr, size)
}

// compressGzip encodes data as a single gzip member.
func compressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		_ = gw.Close()
		return nil, err
	}

	if err := gw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressGzip decodes gzip stream of known decoded size.
func decompressGzip(src []byte, size int) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gr.Close() }()

	return readAllBounded(gr, size)
}

// compressZstd encodes data with the shared zstd encoder.
func compressZstd(data []byte) ([]byte, error) {
	enc, err := zstdEncoderShared()
	if err != nil {
		return nil, err
	}

	return enc.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

// decompressZstd decodes zstd frames of known decoded size.
func decompressZstd(src []byte, size int) ([]byte, error) {
	// EncodeAll emits no frame for empty input.
	if len(src) == 0 {
		return []byte{}, nil
	}

	dec, err := acquireZstdDecoder(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	defer releaseZstdDecoder(dec)

	return readAllBounded(dec, size)
}

// compressLZ4 encodes data as an LZ4 frame.
func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressLZ4 decodes LZ4 frame of known decoded size.
func decompressLZ4(src []byte, size int) ([]byte, error) {
	return readAllBounded(lz4.NewReader(bytes.NewReader(src)), size)
}

// compressLZSS compresses the data using LZSS.
func compressLZSS(data []byte) ([]byte, error) {
	return lzss.Compress(data, lzss.DefaultCompressOptions())
}

// decompressLZSS decodes LZSS payload of known decoded size.
func decompressLZSS(src []byte, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(size, decodePrealloc))
	if _, err := lzss.DecompressToWriter(&buf, bytes.NewReader(src), size, nil); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// readAllBounded reads at most size+1 bytes so oversized output is detected without unbounded allocation.
// Initial capacity is capped; the buffer grows only as decoded bytes arrive.
func readAllBounded(r io.Reader, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, min(size, decodePrealloc)))
	n, err := io.Copy(buf, io.LimitReader(r, int64(size)+1))
	if err != nil {
		return nil, err
	}

	if n > int64(size) {
		return nil, fmt.Errorf("decoded more than %d bytes", size)
	}

	return buf.Bytes(), nil
}
