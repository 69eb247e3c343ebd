// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolveOutputPath maps a logical slash-separated path to a filesystem path
// under root. The mapping is lexical: rooted paths, drive prefixes, NUL bytes
// and ".." segments that climb above root yield *WriteOutsideOutputError.
// Nothing is touched on disk.
func ResolveOutputPath(root, logicalPath string) (string, error) {
	rel, err := cleanRelativePath(logicalPath)
	if err != nil {
		return "", err
	}

	rootClean := filepath.Clean(root)
	out := filepath.Join(rootClean, filepath.FromSlash(rel))

	within, err := filepath.Rel(rootClean, out)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) || filepath.IsAbs(within) {
		return "", &WriteOutsideOutputError{Path: logicalPath}
	}

	return out, nil
}

// cleanRelativePath lexically cleans logicalPath and rejects anything that
// would not stay strictly below the output root.
func cleanRelativePath(logicalPath string) (string, error) {
	if strings.IndexByte(logicalPath, 0) >= 0 {
		return "", &WriteOutsideOutputError{Path: logicalPath}
	}

	raw := strings.ReplaceAll(logicalPath, `\`, `/`)
	if strings.HasPrefix(raw, "/") || hasWindowsAbsDrivePrefix(raw) {
		return "", &WriteOutsideOutputError{Path: logicalPath}
	}

	cleaned := path.Clean(raw)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &WriteOutsideOutputError{Path: logicalPath}
	}

	return cleaned, nil
}

// StripEntryPrefix removes prefix from the full logical path mount+entryPath.
// A full path not starting with prefix yields *PrefixMismatchError.
func StripEntryPrefix(mount, entryPath, prefix string) (string, error) {
	full := JoinMountPath(mount, entryPath)
	rel, ok := strings.CutPrefix(full, prefix)
	if !ok {
		return "", &PrefixMismatchError{Prefix: prefix, Path: full}
	}

	return rel, nil
}

// CheckOutputEmpty succeeds when dir is missing or an empty directory.
func CheckOutputEmpty(dir string) error {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("open output dir: %w", err)
	}
	defer func() { _ = f.Close() }()

	names, err := f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}

	if len(names) > 0 {
		return &OutputNotEmptyError{Path: dir}
	}

	return nil
}

// CheckInputDir succeeds when dir exists and is a directory.
func CheckInputDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &InputNotADirectoryError{Path: dir}
		}

		return fmt.Errorf("stat input dir: %w", err)
	}

	if !fi.IsDir() {
		return &InputNotADirectoryError{Path: dir}
	}

	return nil
}
