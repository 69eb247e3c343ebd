// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

//go:build windows

package oodle

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/woozymasta/pak"
)

const supported = true

// library binds the exported OodleLZ entry points of a loaded DLL.
type library struct {
	dll           *windows.DLL
	decompress    *windows.Proc
	compress      *windows.Proc
	compressBound *windows.Proc
	compressor    Compressor
	level         Level
}

// loadLibrary loads the DLL at path and resolves required procedures.
func loadLibrary(path string, opts Options) (pak.OodleCodec, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, &pak.OodleFailedError{Err: err}
	}

	lib := &library{dll: dll, compressor: opts.Compressor, level: opts.Level}
	for name, dst := range map[string]**windows.Proc{
		"OodleLZ_Decompress":                    &lib.decompress,
		"OodleLZ_Compress":                      &lib.compress,
		"OodleLZ_GetCompressedBufferSizeNeeded": &lib.compressBound,
	} {
		proc, err := dll.FindProc(name)
		if err != nil {
			_ = dll.Release()
			return nil, &pak.OodleFailedError{Err: err}
		}

		*dst = proc
	}

	return lib, nil
}

// Decompress decodes src into exactly size bytes.
func (l *library) Decompress(src []byte, size int) ([]byte, error) {
	out := make([]byte, size)
	if len(src) == 0 || size == 0 {
		return out[:0], nil
	}

	// fuzzSafe=1, checkCRC=0, verbosity=0, threadPhase=3 (all phases).
	n, _, _ := l.decompress.Call(
		uintptr(unsafe.Pointer(&src[0])), uintptr(len(src)),
		uintptr(unsafe.Pointer(&out[0])), uintptr(size),
		1, 0, 0,
		0, 0, 0, 0, 0, 0,
		3,
	)
	if int(n) != size {
		return nil, fmt.Errorf("oodle decoded %d bytes, expected %d", int(n), size)
	}

	return out, nil
}

// Compress encodes src with the configured compressor and level.
func (l *library) Compress(src []byte) ([]byte, error) {
	bound, _, _ := l.compressBound.Call(uintptr(l.compressor), uintptr(len(src)))
	out := make([]byte, int(bound))
	if len(src) == 0 {
		return out[:0], nil
	}

	n, _, _ := l.compress.Call(
		uintptr(l.compressor),
		uintptr(unsafe.Pointer(&src[0])), uintptr(len(src)),
		uintptr(unsafe.Pointer(&out[0])),
		uintptr(l.level),
		0, 0, 0, 0, 0,
	)
	if int(n) <= 0 || int(n) > len(out) {
		return nil, fmt.Errorf("oodle compress returned %d", int(n))
	}

	return out[:int(n)], nil
}
