// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

//go:build !pak_nocompress

package pak

// compressionEnabled gates every codec except CompressionNone.
const compressionEnabled = true
