// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/woozymasta/pathrules"
)

// Compression identifies the codec used for one entry. Tags are stored
// as one byte in index records.
type Compression uint8

// Supported codecs.
const (
	CompressionNone Compression = iota
	CompressionZlib
	CompressionGzip
	CompressionZstd
	CompressionLZ4
	CompressionLZSS
	CompressionOodle

	compressionCount
)

var compressionNames = [compressionCount]string{
	CompressionNone:  "None",
	CompressionZlib:  "Zlib",
	CompressionGzip:  "Gzip",
	CompressionZstd:  "Zstd",
	CompressionLZ4:   "LZ4",
	CompressionLZSS:  "LZSS",
	CompressionOodle: "Oodle",
}

// String returns the codec name.
func (c Compression) String() string {
	if c < compressionCount {
		return compressionNames[c]
	}

	return fmt.Sprintf("Unknown(%d)", uint8(c))
}

// Valid reports whether c is a known codec tag.
func (c Compression) Valid() bool {
	return c < compressionCount
}

// MarshalText implements encoding.TextMarshaler.
func (c Compression) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, &EnumError{Type: "Compression", Value: c.String()}
	}

	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}

	*c = parsed
	return nil
}

// ParseCompression parses codec name case-insensitively.
func ParseCompression(name string) (Compression, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range compressionNames {
		if strings.EqualFold(candidate, trimmed) {
			return Compression(i), nil //nolint:gosec // bounded by compressionCount
		}
	}

	return CompressionNone, &EnumError{Type: "Compression", Value: name}
}

// compressionFromTag converts stored tag byte to Compression.
func compressionFromTag(tag uint8) (Compression, error) {
	c := Compression(tag)
	if !c.Valid() {
		return CompressionNone, &EnumError{Type: "Compression", Value: fmt.Sprintf("%d", tag)}
	}

	return c, nil
}

// OodleCodec is the externally supplied Oodle capability.
// Implementations must return exactly size bytes or an error.
type OodleCodec interface {
	Decompress(src []byte, size int) ([]byte, error)
}

// OodleCompressor is optionally implemented by an OodleCodec that can also encode.
type OodleCompressor interface {
	Compress(src []byte) ([]byte, error)
}

// CodecSet dispatches compress and decompress calls to codec implementations.
// A CodecSet is safe for concurrent use.
type CodecSet struct {
	oodleLoader func() (OodleCodec, error)
	oodle       OodleCodec
	oodleErr    error
	oodleOnce   sync.Once
}

// CodecOption configures a CodecSet.
type CodecOption func(*CodecSet)

// WithOodle wires an already obtained Oodle capability.
func WithOodle(codec OodleCodec) CodecOption {
	return func(s *CodecSet) {
		s.oodleLoader = func() (OodleCodec, error) { return codec, nil }
	}
}

// WithOodleLoader wires a loader called once on first Oodle use.
func WithOodleLoader(load func() (OodleCodec, error)) CodecOption {
	return func(s *CodecSet) {
		s.oodleLoader = load
	}
}

// NewCodecSet creates a codec dispatcher.
func NewCodecSet(opts ...CodecOption) *CodecSet {
	s := &CodecSet{}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

var (
	defaultCodecsOnce sync.Once
	defaultCodecs     *CodecSet
)

// DefaultCodecs returns shared codec set without Oodle capability.
func DefaultCodecs() *CodecSet {
	defaultCodecsOnce.Do(func() {
		defaultCodecs = NewCodecSet()
	})

	return defaultCodecs
}

// Compress encodes raw with codec c.
func (s *CodecSet) Compress(c Compression, raw []byte) ([]byte, error) {
	if err := checkCodecEnabled(c); err != nil {
		return nil, err
	}

	var (
		out []byte
		err error
	)

	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionZlib:
		out, err = compressZlib(raw)
	case CompressionGzip:
		out, err = compressGzip(raw)
	case CompressionZstd:
		out, err = compressZstd(raw)
	case CompressionLZ4:
		out, err = compressLZ4(raw)
	case CompressionLZSS:
		out, err = compressLZSS(raw)
	case CompressionOodle:
		codec, oodleErr := s.oodleCodec()
		if oodleErr != nil {
			return nil, oodleErr
		}

		compressor, ok := codec.(OodleCompressor)
		if !ok {
			return nil, fmt.Errorf("%w: capability cannot compress", ErrOodleUnsupported)
		}

		out, err = compressor.Compress(raw)
	default:
		return nil, &EnumError{Type: "Compression", Value: c.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", c, err)
	}

	return out, nil
}

// Decompress decodes src with codec c and requires exactly size output bytes.
func (s *CodecSet) Decompress(c Compression, src []byte, size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrSizeOverflow
	}

	if err := checkCodecEnabled(c); err != nil {
		return nil, err
	}

	var (
		out []byte
		err error
	)

	switch c {
	case CompressionNone:
		out = src
	case CompressionZlib:
		out, err = decompressZlib(src, size)
	case CompressionGzip:
		out, err = decompressGzip(src, size)
	case CompressionZstd:
		out, err = decompressZstd(src, size)
	case CompressionLZ4:
		out, err = decompressLZ4(src, size)
	case CompressionLZSS:
		out, err = decompressLZSS(src, size)
	case CompressionOodle:
		codec, oodleErr := s.oodleCodec()
		if oodleErr != nil {
			return nil, oodleErr
		}

		out, err = codec.Decompress(src, size)
	default:
		return nil, &EnumError{Type: "Compression", Value: c.String()}
	}
	if err != nil {
		return nil, &DecompressionError{Compression: c, Err: err}
	}

	if len(out) != size {
		return nil, &DecompressionError{
			Compression: c,
			Err:         fmt.Errorf("got %d bytes, expected %d", len(out), size),
		}
	}

	return out, nil
}

// oodleCodec resolves Oodle capability once and caches outcome.
func (s *CodecSet) oodleCodec() (OodleCodec, error) {
	if s == nil {
		return nil, ErrOodleUnsupported
	}

	s.oodleOnce.Do(func() {
		if s.oodleLoader == nil {
			s.oodleErr = ErrOodleUnsupported
			return
		}

		codec, err := s.oodleLoader()
		switch {
		case err == nil && codec == nil:
			s.oodleErr = &OodleFailedError{}
		case errors.Is(err, errors.ErrUnsupported), errors.Is(err, ErrOodleUnsupported):
			s.oodleErr = ErrOodleUnsupported
		case err != nil:
			s.oodleErr = &OodleFailedError{Err: err}
		default:
			s.oodle = codec
		}
	})

	return s.oodle, s.oodleErr
}

// checkCodecEnabled reports feature-gating failure for codec c.
func checkCodecEnabled(c Compression) error {
	if !c.Valid() {
		return &EnumError{Type: "Compression", Value: c.String()}
	}

	if c != CompressionNone && !compressionEnabled {
		return ErrCompressionDisabled
	}

	return nil
}

// compressMatcher holds compiled allow-list rules for compression.
type compressMatcher struct {
	matcher *pathrules.Matcher
}

// newCompressMatcher compiles compression path rules.
func newCompressMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*compressMatcher, error) {
	rules = normalizeCompressRules(rules)
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressPattern, err)
	}

	return &compressMatcher{matcher: matcher}, nil
}

// normalizeCompressRules normalizes rule patterns and drops empty patterns.
func normalizeCompressRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// Match reports whether path is included by compress rules.
func (m *compressMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return false
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// shouldCompressBySize reports whether payload size fits compression boundaries.
func shouldCompressBySize(opts PackOptions, size int64) bool {
	return size >= opts.MinCompressSize && size <= opts.MaxCompressSize
}
