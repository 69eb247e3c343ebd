// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/pak

package pak

import (
	"crypto/aes"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// KeySize is AES-256 key length in bytes.
const KeySize = 32

// blockSize is AES block size; encrypted payloads are padded to it.
const blockSize = aes.BlockSize

// Key is a 256-bit AES key. It is never written to an archive.
type Key [KeySize]byte

// NewKey copies raw key bytes. Length other than KeySize is ErrAES.
func NewKey(raw []byte) (*Key, error) {
	if len(raw) != KeySize {
		return nil, ErrAES
	}

	var k Key
	copy(k[:], raw)
	return &k, nil
}

// ParseKey decodes hex (optionally 0x-prefixed) or base64 key text.
func ParseKey(text string) (*Key, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrAES
	}

	hexText := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
	if len(hexText) == KeySize*2 {
		if raw, err := hex.DecodeString(hexText); err == nil {
			return NewKey(raw)
		}
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if raw, err := enc.DecodeString(text); err == nil {
			return NewKey(raw)
		}
	}

	return nil, ErrAES
}

// Encrypt zero-pads plaintext to the AES block size and encrypts each block
// independently (ECB), which is the layout pak payloads use. The input is not modified.
func Encrypt(key *Key, plaintext []byte) ([]byte, error) {
	if !encryptionEnabled {
		return nil, ErrEncryptionDisabled
	}

	if key == nil {
		return nil, ErrEncrypted
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ErrAES
	}

	out := make([]byte, alignBlock(uint64(len(plaintext))))
	copy(out, plaintext)
	for off := 0; off < len(out); off += blockSize {
		block.Encrypt(out[off:off+blockSize], out[off:off+blockSize])
	}

	return out, nil
}

// Decrypt decrypts block-aligned ciphertext. Padding is left in place;
// callers truncate to the stored size.
func Decrypt(key *Key, ciphertext []byte) ([]byte, error) {
	if !encryptionEnabled {
		return nil, ErrEncryptionDisabled
	}

	if key == nil {
		return nil, ErrEncrypted
	}

	if len(ciphertext)%blockSize != 0 {
		return nil, ErrAES
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ErrAES
	}

	out := make([]byte, len(ciphertext))
	for off := 0; off < len(out); off += blockSize {
		block.Decrypt(out[off:off+blockSize], ciphertext[off:off+blockSize])
	}

	return out, nil
}

// alignBlock rounds n up to the AES block size.
func alignBlock(n uint64) uint64 {
	return (n + blockSize - 1) &^ (blockSize - 1)
}
