// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import "strings"

// FilterEntries returns entries under prefix stored with one of codecs.
// Empty prefix and no codecs keep every entry. The result never aliases entries.
func FilterEntries(entries []EntryInfo, prefix string, codecs ...Compression) []EntryInfo {
	return filterEntriesByCompression(filterEntriesByPrefix(entries, prefix), codecs...)
}

// filterEntriesByPrefix keeps entries under prefix (or exact match if it points to a file).
// The result never aliases entries.
func filterEntriesByPrefix(entries []EntryInfo, prefix string) []EntryInfo {
	prefix = NormalizePath(prefix)
	out := make([]EntryInfo, 0, len(entries))
	if prefix == "" {
		return append(out, entries...)
	}

	withSlash := prefix + "/"
	for _, entry := range entries {
		entryPath := NormalizePath(entry.Path)
		if entryPath == prefix || strings.HasPrefix(entryPath, withSlash) {
			out = append(out, entry)
		}
	}

	return out
}

// filterEntriesByCompression keeps entries stored with one of codecs.
func filterEntriesByCompression(entries []EntryInfo, codecs ...Compression) []EntryInfo {
	if len(codecs) == 0 {
		return entries
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, entry := range entries {
		for _, c := range codecs {
			if entry.Compression == c {
				out = append(out, entry)
				break
			}
		}
	}

	return out
}
