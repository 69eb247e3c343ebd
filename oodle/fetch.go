// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package oodle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/woozymasta/pak"
)

// maxFetchSize bounds the downloaded library size.
const maxFetchSize = 64 << 20

// Fetch downloads url into dst atomically. When wantSHA256 is set the
// download must match it. Transport and HTTP status failures wrap
// pak.ErrNetwork; a digest mismatch wraps pak.ErrHashMismatch.
func Fetch(ctx context.Context, client *http.Client, url, dst, wantSHA256 string) error {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", pak.ErrNetwork, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", pak.ErrNetwork, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: %s", pak.ErrNetwork, url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	h := sha256.New()
	n, copyErr := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(resp.Body, maxFetchSize+1))
	closeErr := tmp.Close()
	if copyErr != nil {
		return fmt.Errorf("%w: read body: %w", pak.ErrNetwork, copyErr)
	}

	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}

	if n > maxFetchSize {
		return fmt.Errorf("%w: %s exceeds %d bytes", pak.ErrSizeOverflow, url, maxFetchSize)
	}

	if wantSHA256 != "" {
		got := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(got, strings.TrimSpace(wantSHA256)) {
			return fmt.Errorf("%w: sha256 %s, want %s", pak.ErrHashMismatch, got, wantSHA256)
		}
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("install %s: %w", dst, err)
	}

	return nil
}
