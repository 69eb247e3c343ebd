//go:build !windows

package oodle

import (
	"errors"
	"testing"

	"github.com/woozymasta/pak"
)

func TestLoadUnsupported(t *testing.T) {
	t.Parallel()

	codecs := pak.NewCodecSet(pak.WithOodleLoader(Loader(Options{DLLPath: "missing.dll"})))
	_, err := codecs.Decompress(pak.CompressionOodle, []byte{1, 2, 3}, 8)
	if !errors.Is(err, pak.ErrOodleUnsupported) {
		t.Fatalf("Decompress() error=%v, want ErrOodleUnsupported", err)
	}

	_, err = codecs.Compress(pak.CompressionOodle, []byte("data"))
	if !errors.Is(err, pak.ErrOodleUnsupported) {
		t.Fatalf("Compress() error=%v, want ErrOodleUnsupported", err)
	}
}
