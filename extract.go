// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// extractWorkItem stores one selected entry with prepared output path.
type extractWorkItem struct {
	outPath string
	// dir is the parent directory of outPath when it is not the output root.
	dir   string
	entry EntryInfo
}

// Extract writes selected entries under dstDir.
//
// Every output path is resolved before anything is written; entries that
// fail resolution are skipped and reported while the rest are extracted.
// Failures are collected into *ExtractError. OnEntryDone may be called
// concurrently from worker goroutines.
func (r *Reader) Extract(ctx context.Context, dstDir string, opts ExtractOptions) (*ExtractResult, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if !opts.Force {
		if err := CheckOutputEmpty(dstDir); err != nil {
			return nil, err
		}
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	entries := r.idx.entries
	if opts.Entries != nil {
		entries = opts.Entries
	}

	dstRootAbs, err := filepath.Abs(dstDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}

	if err := os.MkdirAll(dstRootAbs, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	strip := r.idx.mountPoint
	if opts.StripPrefix != nil {
		strip = *opts.StripPrefix
	}

	workItems, failures := prepareExtractWorkItems(dstRootAbs, r.idx.mountPoint, strip, entries, opts.SanitizeNames)
	for _, failure := range failures {
		logger.Warn("skip entry", "error", failure)
	}

	res := &ExtractResult{Skipped: len(failures)}
	if err := prepareExtractDirs(dstRootAbs, workItems); err != nil {
		return res, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, task := range workItems {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			written, err := r.extractPreparedEntry(gctx, task)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("extract entry failed", "path", task.entry.Path, "error", err)
				failures = append(failures, err)
				res.Skipped++
				return nil
			}

			logger.Debug("extracted entry", "path", task.entry.Path, "output", task.outPath, "bytes", written)
			res.Written++
			res.Bytes += written
			if opts.OnEntryDone != nil {
				opts.OnEntryDone(task.entry, written, task.outPath)
			}

			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if len(failures) > 0 {
		return res, &ExtractError{Errs: failures}
	}

	return res, nil
}

// prepareExtractWorkItems strips prefixes and resolves output paths for all
// entries up front. Entries that cannot be placed are returned as failures.
func prepareExtractWorkItems(
	dstRootAbs string,
	mount string,
	strip string,
	entries []EntryInfo,
	sanitize bool,
) ([]extractWorkItem, []error) {
	var failures []error
	workItems := make([]extractWorkItem, 0, len(entries))
	rels := make([]string, 0, len(entries))

	for _, entry := range entries {
		rel, err := StripEntryPrefix(mount, entry.Path, strip)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		// Containment is checked on the raw name so sanitizing never hides traversal.
		outPath, err := ResolveOutputPath(dstRootAbs, rel)
		if err != nil {
			failures = append(failures, err)
			continue
		}

		workItems = append(workItems, extractWorkItem{entry: entry, outPath: outPath})
		rels = append(rels, rel)
	}

	if sanitize && len(rels) > 0 {
		cleaned := make([]string, len(rels))
		for i, rel := range rels {
			cleaned[i], _ = cleanRelativePath(rel)
		}

		sanitized, err := sanitizeOutputPaths(cleaned)
		if err != nil {
			return nil, append(failures, err)
		}

		kept := workItems[:0]
		for i := range workItems {
			outPath, err := ResolveOutputPath(dstRootAbs, sanitized[i])
			if err != nil {
				failures = append(failures, err)
				continue
			}

			workItems[i].outPath = outPath
			kept = append(kept, workItems[i])
		}

		workItems = kept
	}

	workItems, failures = dropOutputCollisions(workItems, failures)
	for i := range workItems {
		if dir := filepath.Dir(workItems[i].outPath); dir != dstRootAbs {
			workItems[i].dir = dir
		}
	}

	return workItems, failures
}

// dropOutputCollisions keeps the first entry for each output file and reports
// later entries that resolve to the same file. Case is folded on hosts whose
// filesystems are case-insensitive by default.
func dropOutputCollisions(workItems []extractWorkItem, failures []error) ([]extractWorkItem, []error) {
	foldCase := runtime.GOOS == "windows" || runtime.GOOS == "darwin"
	owners := make(map[string]string, len(workItems))
	kept := workItems[:0]

	for _, task := range workItems {
		key := task.outPath
		if foldCase {
			key = strings.ToLower(key)
		}

		if first, taken := owners[key]; taken {
			failures = append(failures, fmt.Errorf("%w: %s and %s both resolve to %s",
				ErrDuplicateEntryPath, first, task.entry.Path, task.outPath))
			continue
		}

		owners[key] = task.entry.Path
		kept = append(kept, task)
	}

	return kept, failures
}

// prepareExtractDirs creates all unique parent directories needed by work items.
func prepareExtractDirs(dstRootAbs string, workItems []extractWorkItem) error {
	seen := make(map[string]struct{}, len(workItems))
	for _, task := range workItems {
		if task.dir == "" {
			continue
		}

		if _, exists := seen[task.dir]; exists {
			continue
		}

		seen[task.dir] = struct{}{}
		if err := os.MkdirAll(task.dir, 0o750); err != nil {
			return fmt.Errorf("create output directory %s under %s: %w", task.dir, dstRootAbs, err)
		}
	}

	return nil
}

// extractPreparedEntry decodes one entry and writes it to its output path.
func (r *Reader) extractPreparedEntry(ctx context.Context, task extractWorkItem) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if err := validateEntryRanges([]EntryInfo{task.entry}, int64(r.header.Version.headerSize()), r.size, r.maxEntrySize); err != nil {
		return 0, err
	}

	data, err := r.readPayload(&task.entry)
	if err != nil {
		return 0, err
	}

	file, err := os.OpenFile(task.outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", task.entry.Path, err)
	}

	n, writeErr := file.Write(data)
	closeErr := file.Close()
	if writeErr != nil {
		return int64(n), fmt.Errorf("write %s: %w", task.entry.Path, writeErr)
	}

	if closeErr != nil {
		return int64(n), fmt.Errorf("close %s: %w", task.entry.Path, closeErr)
	}

	return int64(n), nil
}
