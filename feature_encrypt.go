// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

//go:build !pak_noencrypt

package pak

// encryptionEnabled gates AES operations.
const encryptionEnabled = true
