// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

// Package oodle provides the Oodle codec capability for pak archives.
//
// Oodle is a proprietary library distributed as a Windows DLL. On Windows
// the DLL is loaded from disk (optionally downloaded first); on every other
// platform Load reports pak.ErrOodleUnsupported. Wire the capability into a
// reader or writer with pak.WithOodleLoader(oodle.Loader(opts)).
package oodle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/woozymasta/pak"
)

// DLLName is the Oodle runtime file name looked up by default.
const DLLName = "oo2core_9_win64.dll"

// Compressor selects the Oodle encoder used by Compress.
type Compressor int32

// Oodle compressor identifiers.
const (
	CompressorKraken    Compressor = 8
	CompressorMermaid   Compressor = 9
	CompressorSelkie    Compressor = 11
	CompressorLeviathan Compressor = 13
)

// Level is the Oodle compression level.
type Level int32

// Common compression levels.
const (
	LevelSuperFast Level = 1
	LevelFast      Level = 3
	LevelNormal    Level = 4
	LevelOptimal2  Level = 6
)

// Options configures how the Oodle library is located.
type Options struct {
	// Client performs the download; nil means http.DefaultClient.
	Client *http.Client
	// DLLPath is the library path; empty means DLLName next to the executable.
	DLLPath string
	// URL downloads the library when DLLPath does not exist; empty disables fetching.
	URL string
	// SHA256 is the expected hex digest of the downloaded file; empty skips the check.
	SHA256 string
	// Compressor is used by Compress; zero means CompressorKraken.
	Compressor Compressor
	// Level is used by Compress; zero means LevelNormal.
	Level Level
}

// Loader returns a loader for pak.WithOodleLoader. The library is resolved
// on first Oodle use, not when the loader is created.
func Loader(opts Options) func() (pak.OodleCodec, error) {
	return func() (pak.OodleCodec, error) {
		return Load(context.Background(), opts)
	}
}

// Load locates, optionally downloads and loads the Oodle library.
func Load(ctx context.Context, opts Options) (pak.OodleCodec, error) {
	if opts.Compressor == 0 {
		opts.Compressor = CompressorKraken
	}

	if opts.Level == 0 {
		opts.Level = LevelNormal
	}

	if !supported {
		return nil, pak.ErrOodleUnsupported
	}

	path, err := resolveDLLPath(opts.DLLPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && opts.URL != "" {
		if err := Fetch(ctx, opts.Client, opts.URL, path, opts.SHA256); err != nil {
			return nil, err
		}
	}

	return loadLibrary(path, opts)
}

// resolveDLLPath returns explicit path or DLLName beside the executable.
func resolveDLLPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}

	return filepath.Join(filepath.Dir(exe), DLLName), nil
}
