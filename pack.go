// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Pack writes a pak to out from the given inputs.
// Inputs are sorted by path for deterministic output.
func Pack(ctx context.Context, out io.WriteSeeker, inputs []Input, opts PackOptions) (*PackResult, error) {
	startedAt := time.Now()

	if out == nil {
		return nil, ErrNilWriter
	}

	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	if ctx == nil {
		ctx = context.Background()
	}

	opts.applyDefaults()
	if opts.EncryptEntries && opts.Writer.Key == nil {
		return nil, fmt.Errorf("%w: entry encryption requested", ErrEncrypted)
	}

	plan, err := preparePackPlan(inputs)
	if err != nil {
		return nil, err
	}

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	wr, err := NewWriter(out, opts.Writer)
	if err != nil {
		return nil, err
	}
	defer wr.release()

	res := &PackResult{}
	for _, in := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, candidate, err := packInput(wr, in, opts, matcher)
		if err != nil {
			return nil, err
		}

		if candidate && !entry.IsCompressed() {
			res.SkippedCompressionEntries++
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(PackEntryProgress{
				Path:                 entry.Path,
				Offset:               entry.Offset,
				StoredSize:           entry.StoredSize,
				Size:                 entry.Size,
				Compression:          entry.Compression,
				CompressionCandidate: candidate,
			})
		}
	}

	written, err := wr.Finalize()
	if err != nil {
		return nil, err
	}

	res.WriteResult = *written
	res.Duration = time.Since(startedAt)
	return res, nil
}

// PackDir packs every regular file under dir into out.
// Entry paths are relative to dir with "/" separators.
func PackDir(ctx context.Context, out io.WriteSeeker, dir string, opts PackOptions) (*PackResult, error) {
	inputs, err := CollectDirInputs(dir)
	if err != nil {
		return nil, err
	}

	return Pack(ctx, out, inputs, opts)
}

// PackFile writes a pak to outPath.
func PackFile(ctx context.Context, outPath string, inputs []Input, opts PackOptions) (*PackResult, error) {
	f, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create pak file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	res, err := Pack(ctx, f, inputs, opts)
	if err != nil {
		return nil, err
	}

	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync pak file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close pak file: %w", err)
	}
	f = nil

	return res, nil
}

// CollectDirInputs walks dir and returns one Input per regular file.
func CollectDirInputs(dir string) ([]Input, error) {
	if err := CheckInputDir(dir); err != nil {
		return nil, err
	}

	var inputs []Input
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		inputs = append(inputs, Input{
			Path:     filepath.ToSlash(rel),
			SizeHint: info.Size(),
			Open: func() (io.ReadCloser, error) {
				return os.Open(p)
			},
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}

	if len(inputs) == 0 {
		return nil, ErrEmptyInputs
	}

	return inputs, nil
}

// preparePackPlan normalizes and sorts pack inputs for a deterministic write pass.
func preparePackPlan(inputs []Input) ([]Input, error) {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)

	for i := range sorted {
		normalizedPath, err := normalizeArchiveEntryPath(sorted[i].Path)
		if err != nil {
			return nil, err
		}

		sorted[i].Path = normalizedPath
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	if err := validateUniqueEntryPaths(sorted); err != nil {
		return nil, err
	}

	return sorted, nil
}

// validateUniqueEntryPaths rejects duplicate paths in sorted inputs.
func validateUniqueEntryPaths(sorted []Input) error {
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Path == sorted[i-1].Path {
			return fmt.Errorf("%w: %s", ErrDuplicateEntryPath, sorted[i].Path)
		}
	}

	return nil
}

// packInput opens one input and writes it through wr.
// The candidate flag reports whether compression rules selected the entry.
func packInput(wr *Writer, in Input, opts PackOptions, matcher *compressMatcher) (EntryInfo, bool, error) {
	candidate := isCompressionCandidate(opts, matcher, in.Path)
	if candidate && in.SizeHint > 0 && !shouldCompressBySize(opts, in.SizeHint) {
		candidate = false
	}

	rc, err := openInputReader(in)
	if err != nil {
		return EntryInfo{}, false, err
	}

	entryOpts := EntryOptions{Encrypt: opts.EncryptEntries}
	var entry EntryInfo
	if candidate {
		var data []byte
		data, err = readPayloadBounded(rc, math.MaxInt64, wr.copyBuf)
		if err == nil {
			if shouldCompressBySize(opts, int64(len(data))) {
				entryOpts.Compression = opts.Compression
			}

			entry, err = wr.add(in.Path, data, entryOpts)
		}
	} else {
		entry, err = wr.addReader(in.Path, rc, entryOpts)
	}

	closeErr := rc.Close()
	if err != nil {
		return EntryInfo{}, false, fmt.Errorf("pack %s: %w", in.Path, err)
	}

	if closeErr != nil {
		return EntryInfo{}, false, fmt.Errorf("close input %s: %w", in.Path, closeErr)
	}

	return entry, candidate, nil
}

// isCompressionCandidate applies compression rules; without rules every
// entry is a candidate once a codec is chosen.
func isCompressionCandidate(opts PackOptions, matcher *compressMatcher, path string) bool {
	if opts.Compression == CompressionNone {
		return false
	}

	if matcher == nil {
		return true
	}

	return matcher.Match(path)
}

// openInputReader opens source stream for one input.
func openInputReader(in Input) (io.ReadCloser, error) {
	if in.Open == nil {
		return nil, fmt.Errorf("input %s: Open is nil", in.Path)
	}

	rc, err := in.Open()
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", in.Path, err)
	}

	return rc, nil
}
