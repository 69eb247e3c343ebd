package pak

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey(t testing.TB) *Key {
	t.Helper()

	key, err := NewKey(bytes.Repeat([]byte{0x5a}, KeySize))
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	return key
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	raw := bytes.Repeat([]byte{0x01, 0xfe}, KeySize/2)
	testCases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "hex", in: hex.EncodeToString(raw)},
		{name: "hex 0x", in: "0x" + strings.ToUpper(hex.EncodeToString(raw))},
		{name: "base64", in: base64.StdEncoding.EncodeToString(raw)},
		{name: "raw base64", in: base64.RawStdEncoding.EncodeToString(raw)},
		{name: "short", in: hex.EncodeToString(raw[:16]), wantErr: true},
		{name: "empty", in: "  ", wantErr: true},
		{name: "garbage", in: "not a key!", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			key, err := ParseKey(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrAES) {
					t.Fatalf("expected ErrAES, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseKey: %v", err)
			}

			if !bytes.Equal(key[:], raw) {
				t.Fatalf("key bytes mismatch")
			}
		})
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	for _, n := range []int{0, 1, 15, 16, 17, 1000} {
		plain := bytes.Repeat([]byte{'p'}, n)

		cipher, err := Encrypt(key, plain)
		if err != nil {
			t.Fatalf("Encrypt(%d): %v", n, err)
		}

		if uint64(len(cipher)) != alignBlock(uint64(n)) {
			t.Fatalf("len(cipher)=%d, want %d", len(cipher), alignBlock(uint64(n)))
		}

		if n >= blockSize && bytes.Equal(cipher[:blockSize], plain[:blockSize]) {
			t.Fatal("ciphertext equals plaintext")
		}

		got, err := Decrypt(key, cipher)
		if err != nil {
			t.Fatalf("Decrypt(%d): %v", n, err)
		}

		if !bytes.Equal(got[:n], plain) {
			t.Fatalf("round trip mismatch for %d bytes", n)
		}

		if !bytes.Equal(got[n:], make([]byte, len(got)-n)) {
			t.Fatalf("padding is not zero for %d bytes", n)
		}
	}
}

func TestDecryptErrors(t *testing.T) {
	t.Parallel()

	if _, err := Decrypt(testKey(t), make([]byte, 15)); !errors.Is(err, ErrAES) {
		t.Fatalf("unaligned: expected ErrAES, got %v", err)
	}

	if _, err := Decrypt(nil, make([]byte, 16)); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("nil key: expected ErrEncrypted, got %v", err)
	}

	if _, err := NewKey(make([]byte, 31)); !errors.Is(err, ErrAES) {
		t.Fatalf("short key: expected ErrAES, got %v", err)
	}
}
