// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive/internal path to normalized slash-separated form.
// It trims spaces, accepts both "/" and "\", removes leading "./" and "/", and cleans "." segments.
func NormalizePath(raw string) string {
	raw = normalizePathForMatching(raw)
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.TrimSuffix(raw, "/")
}

// JoinMountPath returns the full logical path of an entry under mount.
func JoinMountPath(mount, entryPath string) string {
	return mount + entryPath
}

// normalizePathForMatching normalizes user/input paths for matcher use.
func normalizePathForMatching(path string) string {
	path = strings.TrimSpace(path)
	path = strings.ReplaceAll(path, `\`, `/`)
	path = strings.TrimPrefix(path, "./")
	return path
}

// normalizeArchiveEntryPath converts input path to canonical stored form with "/" separators.
func normalizeArchiveEntryPath(raw string) (string, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidEntryPath, raw)
	}

	normalizedPath := NormalizePath(raw)
	if normalizedPath == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	if len(normalizedPath) > maxPathLen {
		return "", fmt.Errorf("%w: path length %d", ErrSizeOverflow, len(normalizedPath))
	}

	return normalizedPath, nil
}

// hasWindowsAbsDrivePrefix reports whether path starts with a drive prefix like C: or C:/.
func hasWindowsAbsDrivePrefix(path string) bool {
	if len(path) < 2 {
		return false
	}

	return isASCIIAlpha(path[0]) && path[1] == ':'
}

// isASCIIAlpha reports whether byte is ASCII latin letter.
func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
