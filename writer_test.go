package pak

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestWriter creates a writer on a temp file; the file is closed by cleanup.
func newTestWriter(t *testing.T, opts WriterOptions) (*Writer, *os.File) {
	t.Helper()

	f, err := os.Create(filepath.Join(t.TempDir(), "w.pak"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	w, err := NewWriter(f, opts)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	return w, f
}

func TestCopyPayloadBounded(t *testing.T) {
	t.Parallel()

	t.Run("exact limit", func(t *testing.T) {
		t.Parallel()

		var dst bytes.Buffer
		src := bytes.NewReader([]byte("abc"))
		written, err := copyPayloadBounded(&dst, src, 3, make([]byte, 2))
		if err != nil {
			t.Fatalf("copyPayloadBounded: %v", err)
		}
		if written != 3 {
			t.Fatalf("written=%d, want 3", written)
		}
		if got := dst.String(); got != "abc" {
			t.Fatalf("dst=%q, want %q", got, "abc")
		}
	})

	t.Run("overflow", func(t *testing.T) {
		t.Parallel()

		var dst bytes.Buffer
		src := bytes.NewReader([]byte("abcdef"))
		written, err := copyPayloadBounded(&dst, src, 3, make([]byte, 2))
		if !errors.Is(err, ErrSizeOverflow) {
			t.Fatalf("expected ErrSizeOverflow, got %v", err)
		}
		if written != 3 {
			t.Fatalf("written=%d, want 3", written)
		}
	})
}

func TestNewWriter_Errors(t *testing.T) {
	t.Parallel()

	f, err := os.Create(filepath.Join(t.TempDir(), "x.pak"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := NewWriter(nil, WriterOptions{}); !errors.Is(err, ErrNilWriter) {
		t.Fatalf("nil sink: expected ErrNilWriter, got %v", err)
	}

	if _, err := NewWriter(f, WriterOptions{Version: 9}); !errors.Is(err, ErrVersion) {
		t.Fatalf("future version: expected ErrVersion, got %v", err)
	}

	if _, err := NewWriter(f, WriterOptions{EncryptIndex: true}); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("no key: expected ErrEncrypted, got %v", err)
	}

	if _, err := NewWriter(f, WriterOptions{MountPoint: strings.Repeat("m", maxMountLen+1)}); !errors.Is(err, ErrSizeOverflow) {
		t.Fatalf("long mount: expected ErrSizeOverflow, got %v", err)
	}

	if _, err := NewWriter(f, WriterOptions{MountPoint: "\xff/"}); !errors.Is(err, ErrUTF8) {
		t.Fatalf("invalid mount: expected ErrUTF8, got %v", err)
	}
}

func TestWriter_AddErrors(t *testing.T) {
	t.Parallel()

	w, _ := newTestWriter(t, WriterOptions{})
	if err := w.Add("Game/a.txt", []byte("a"), EntryOptions{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	testCases := []struct {
		name    string
		path    string
		opts    EntryOptions
		wantErr error
	}{
		{name: "duplicate", path: "Game/a.txt", wantErr: ErrDuplicateEntryPath},
		{name: "duplicate after normalization", path: `.\Game\a.txt`, wantErr: ErrDuplicateEntryPath},
		{name: "empty", path: "", wantErr: ErrInvalidEntryPath},
		{name: "root only", path: "/", wantErr: ErrInvalidEntryPath},
		{name: "drive", path: "C:/Windows/a.txt", wantErr: ErrPrefixMismatch},
		{name: "encrypt without key", path: "Game/b.txt", opts: EntryOptions{Encrypt: true}, wantErr: ErrEncrypted},
		{name: "unknown codec", path: "Game/c.txt", opts: EntryOptions{Compression: 77}, wantErr: ErrEnum},
	}

	for _, tc := range testCases {
		if err := w.Add(tc.path, []byte("x"), tc.opts); !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}

	if w.Len() != 1 {
		t.Fatalf("Len=%d, want 1 after rejected adds", w.Len())
	}
}

func TestWriter_Finalized(t *testing.T) {
	t.Parallel()

	w, _ := newTestWriter(t, WriterOptions{})
	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if _, err := w.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second Finalize: expected ErrFinalized, got %v", err)
	}

	if err := w.Add("a.txt", nil, EntryOptions{}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("Add after Finalize: expected ErrFinalized, got %v", err)
	}

	if err := w.AddReader("a.txt", strings.NewReader("x"), EntryOptions{}); !errors.Is(err, ErrFinalized) {
		t.Fatalf("AddReader after Finalize: expected ErrFinalized, got %v", err)
	}
}

func TestWriter_EmptyArchive(t *testing.T) {
	t.Parallel()

	w, f := newTestWriter(t, WriterOptions{MountPoint: "../"})
	res, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if res.WrittenEntries != 0 {
		t.Fatalf("WrittenEntries=%d", res.WrittenEntries)
	}

	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	r, err := NewReader(f, fi.Size(), ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if r.Len() != 0 || r.MountPoint() != "../" {
		t.Fatalf("Len=%d mount=%q", r.Len(), r.MountPoint())
	}
}

func TestWriter_AddReaderAndStats(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	w, f := newTestWriter(t, WriterOptions{Key: key})

	streamed := bytes.Repeat([]byte("s"), 3*packCopyBufferSize+7)
	if err := w.AddReader("streamed.bin", bytes.NewReader(streamed), EntryOptions{}); err != nil {
		t.Fatalf("AddReader plain: %v", err)
	}

	if err := w.AddReader("packed.bin", bytes.NewReader(streamed), EntryOptions{Compression: CompressionZstd}); err != nil {
		t.Fatalf("AddReader zstd: %v", err)
	}

	if err := w.AddReader("secret.bin", strings.NewReader("abc"), EntryOptions{Encrypt: true}); err != nil {
		t.Fatalf("AddReader encrypted: %v", err)
	}

	if err := w.AddReader("nil.bin", nil, EntryOptions{}); !errors.Is(err, ErrNilReader) {
		t.Fatalf("AddReader nil: expected ErrNilReader, got %v", err)
	}

	res, err := w.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if res.WrittenEntries != 3 || res.CompressedEntries != 1 || res.EncryptedEntries != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if want := int64(2*len(streamed) + 3); res.RawBytes != want {
		t.Fatalf("RawBytes=%d, want %d", res.RawBytes, want)
	}

	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if want := int64(VersionLatest.headerSize()) + res.DataSize + res.IndexSize; fi.Size() != want {
		t.Fatalf("file size=%d, want header+data+index=%d", fi.Size(), want)
	}

	r, err := NewReader(f, fi.Size(), ReaderOptions{Key: key})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	for _, name := range []string{"streamed.bin", "packed.bin"} {
		got, err := r.ReadEntry(name)
		if err != nil {
			t.Fatalf("ReadEntry(%s): %v", name, err)
		}

		if !bytes.Equal(got, streamed) {
			t.Fatalf("content mismatch for %s", name)
		}

		entry, _ := r.Lookup(name)
		if entry.Hash == nil {
			t.Fatalf("%s has no content hash", name)
		}
	}

	got, err := r.ReadEntry("secret.bin")
	if err != nil || string(got) != "abc" {
		t.Fatalf("ReadEntry(secret.bin)=%q, %v", got, err)
	}
}

func TestWriter_IncompressibleKeepsRequestedCodec(t *testing.T) {
	t.Parallel()

	data := randomBytes(4096, 7)
	path := writeTestPak(t, WriterOptions{}, []testEntry{
		{path: "noise.bin", data: data, opts: EntryOptions{Compression: CompressionZlib}},
	})

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	entry, err := r.Lookup("noise.bin")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if entry.Compression != CompressionZlib {
		t.Fatalf("Compression=%s, want Zlib", entry.Compression)
	}

	if entry.StoredSize < entry.Size {
		t.Fatalf("random data unexpectedly shrank: %d < %d", entry.StoredSize, entry.Size)
	}

	got, err := r.Read(entry)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("Read mismatch: %v", err)
	}
}

func TestWriter_NoContentHash(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{NoContentHash: true}, []testEntry{{path: "a.txt", data: []byte("a")}})
	entries, err := ListEntries(path, ReaderOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	if entries[0].Hash != nil {
		t.Fatal("hash stored despite NoContentHash")
	}
}

func TestWriter_NonZeroBase(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "embedded.bin")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()

	prefix := []byte("EXECUTABLE STUB ")
	if _, err := f.Write(prefix); err != nil {
		t.Fatalf("write prefix: %v", err)
	}

	w, err := NewWriter(f, WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.Add("a.txt", []byte("embedded"), EntryOptions{Compression: CompressionGzip}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	end, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}

	base := int64(len(prefix))
	r, err := NewReader(io.NewSectionReader(f, base, end-base), end-base, ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	got, err := r.ReadEntry("a.txt")
	if err != nil || string(got) != "embedded" {
		t.Fatalf("ReadEntry=%q, %v", got, err)
	}

	head := make([]byte, len(prefix))
	if _, err := f.ReadAt(head, 0); err != nil || !bytes.Equal(head, prefix) {
		t.Fatalf("prefix clobbered: %q, %v", head, err)
	}
}

func TestWriter_NormalizesPaths(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{
		{path: `.\Game\Maps\a.umap`, data: []byte("a")},
		{path: "../escape.txt", data: []byte("b")},
	})

	entries, err := ListEntries(path, ReaderOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}

	if entries[0].Path != "Game/Maps/a.umap" || entries[1].Path != "escape.txt" {
		t.Fatalf("unexpected stored paths: %q, %q", entries[0].Path, entries[1].Path)
	}
}

// brokenReader returns n bytes of 'x' and then fails.
type brokenReader struct {
	n int
}

var errBrokenSource = errors.New("source broke")

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.n == 0 {
		return 0, errBrokenSource
	}

	n := min(len(p), b.n)
	for i := range n {
		p[i] = 'x'
	}
	b.n -= n
	return n, nil
}

func TestWriter_PartialStreamFailsWriter(t *testing.T) {
	t.Parallel()

	w, _ := newTestWriter(t, WriterOptions{})
	if err := w.Add("first.txt", []byte("kept"), EntryOptions{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if err := w.AddReader("bad.bin", &brokenReader{n: 100}, EntryOptions{}); !errors.Is(err, errBrokenSource) {
		t.Fatalf("AddReader: expected source error, got %v", err)
	}

	if err := w.Add("good.txt", []byte("good"), EntryOptions{}); !errors.Is(err, ErrWriterFailed) || !errors.Is(err, errBrokenSource) {
		t.Fatalf("Add after partial stream: expected ErrWriterFailed, got %v", err)
	}

	if _, err := w.Finalize(); !errors.Is(err, ErrWriterFailed) {
		t.Fatalf("Finalize after partial stream: expected ErrWriterFailed, got %v", err)
	}

	if w.Len() != 1 {
		t.Fatalf("Len=%d, want 1", w.Len())
	}
}

func TestWriter_FailedAddKeepsWriterUsable(t *testing.T) {
	t.Parallel()

	w, f := newTestWriter(t, WriterOptions{Codecs: NewCodecSet()})

	if err := w.AddReader("empty.bin", &brokenReader{}, EntryOptions{}); !errors.Is(err, errBrokenSource) {
		t.Fatalf("AddReader: expected source error, got %v", err)
	}

	if err := w.Add("x.txt", []byte("retry"), EntryOptions{Compression: CompressionOodle}); err == nil {
		t.Fatal("Add with unavailable Oodle: expected error")
	}

	if err := w.Add("x.txt", []byte("retry"), EntryOptions{}); err != nil {
		t.Fatalf("retry after failed Add: %v", err)
	}

	if err := w.Add("empty.bin", nil, EntryOptions{}); err != nil {
		t.Fatalf("retry after failed AddReader: %v", err)
	}

	if err := w.Add("x.txt", []byte("again"), EntryOptions{}); !errors.Is(err, ErrDuplicateEntryPath) {
		t.Fatalf("committed path: expected ErrDuplicateEntryPath, got %v", err)
	}

	if _, err := w.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	r, err := NewReader(f, fi.Size(), ReaderOptions{})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	got, err := r.ReadEntry("x.txt")
	if err != nil || string(got) != "retry" {
		t.Fatalf("ReadEntry(x.txt)=%q, %v", got, err)
	}
}
