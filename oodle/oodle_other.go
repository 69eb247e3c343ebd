// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

//go:build !windows

package oodle

import "github.com/woozymasta/pak"

const supported = false

func loadLibrary(string, Options) (pak.OodleCodec, error) {
	return nil, pak.ErrOodleUnsupported
}
