package pak

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestPak opens path and closes the reader on cleanup.
func openTestPak(t *testing.T, path string, opts ReaderOptions) *Reader {
	t.Helper()

	r, err := OpenWithOptions(path, opts)
	if err != nil {
		t.Fatalf("OpenWithOptions: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	return r
}

// readOutput reads a file below root by slash path.
func readOutput(t *testing.T, root, rel string) []byte {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read output %s: %v", rel, err)
	}

	return data
}

func TestExtract_RoundTrip(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("0123456789"), 1024)
	path := writeTestPak(t, WriterOptions{MountPoint: "../"}, []testEntry{
		{path: "a.txt", data: []byte("hello")},
		{path: "dir/b.txt", data: big, opts: EntryOptions{Compression: CompressionZlib}},
	})

	r := openTestPak(t, path, ReaderOptions{})
	out := filepath.Join(t.TempDir(), "out")
	res, err := r.Extract(context.Background(), out, ExtractOptions{MaxWorkers: 2})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Written != 2 || res.Skipped != 0 || res.Bytes != int64(5+len(big)) {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := readOutput(t, out, "a.txt"); string(got) != "hello" {
		t.Fatalf("a.txt=%q", got)
	}

	if got := readOutput(t, out, "dir/b.txt"); !bytes.Equal(got, big) {
		t.Fatal("dir/b.txt content mismatch")
	}
}

func TestExtract_RefusesTraversal(t *testing.T) {
	t.Parallel()

	path := craftPak(t, VersionContentHash, "../../../", []craftedEntry{
		{info: EntryInfo{Path: "../evil.txt"}, payload: []byte("evil")},
		{info: EntryInfo{Path: "safe/ok.txt"}, payload: []byte("ok")},
	}, craftOptions{})

	r := openTestPak(t, path, ReaderOptions{})
	parent := t.TempDir()
	out := filepath.Join(parent, "out")
	res, err := r.Extract(context.Background(), out, ExtractOptions{})

	var outside *WriteOutsideOutputError
	if !errors.As(err, &outside) {
		t.Fatalf("expected WriteOutsideOutputError, got %v", err)
	}

	var extractErr *ExtractError
	if !errors.As(err, &extractErr) || len(extractErr.Errs) != 1 {
		t.Fatalf("expected one collected failure, got %v", err)
	}

	if res == nil || res.Written != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := readOutput(t, out, "safe/ok.txt"); string(got) != "ok" {
		t.Fatalf("safe/ok.txt=%q", got)
	}

	if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("traversal entry was written: %v", err)
	}
}

func TestExtract_OutputNotEmpty(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{{path: "a.txt", data: []byte("new")}})
	r := openTestPak(t, path, ReaderOptions{})

	out := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "a.txt"), []byte("old"), 0o600); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	var notEmpty *OutputNotEmptyError
	if _, err := r.Extract(context.Background(), out, ExtractOptions{}); !errors.As(err, &notEmpty) {
		t.Fatalf("expected OutputNotEmptyError, got %v", err)
	}

	if got := readOutput(t, out, "a.txt"); string(got) != "old" {
		t.Fatalf("existing file changed without Force: %q", got)
	}

	if _, err := r.Extract(context.Background(), out, ExtractOptions{Force: true}); err != nil {
		t.Fatalf("Extract with Force: %v", err)
	}

	if got := readOutput(t, out, "a.txt"); string(got) != "new" {
		t.Fatalf("a.txt=%q after Force", got)
	}
}

func TestExtract_StripPrefix(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{MountPoint: "../../../"}, []testEntry{
		{path: "Game/Content/a.txt", data: []byte("a")},
		{path: "Game/b.txt", data: []byte("b")},
	})
	r := openTestPak(t, path, ReaderOptions{})

	t.Run("custom", func(t *testing.T) {
		t.Parallel()

		strip := "../../../Game/"
		out := filepath.Join(t.TempDir(), "out")
		if _, err := r.Extract(context.Background(), out, ExtractOptions{StripPrefix: &strip}); err != nil {
			t.Fatalf("Extract: %v", err)
		}

		if got := readOutput(t, out, "Content/a.txt"); string(got) != "a" {
			t.Fatalf("Content/a.txt=%q", got)
		}

		if got := readOutput(t, out, "b.txt"); string(got) != "b" {
			t.Fatalf("b.txt=%q", got)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		t.Parallel()

		strip := "Other/"
		out := filepath.Join(t.TempDir(), "out")
		res, err := r.Extract(context.Background(), out, ExtractOptions{StripPrefix: &strip})
		if !errors.Is(err, ErrPrefixMismatch) {
			t.Fatalf("expected ErrPrefixMismatch, got %v", err)
		}

		if res.Written != 0 || res.Skipped != 2 {
			t.Fatalf("unexpected result %+v", res)
		}
	})
}

func TestExtract_SanitizeNames(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{
		{path: "Maps/CON.txt", data: []byte("device")},
		{path: "Maps/ab:c.txt", data: []byte("colon")},
	})
	r := openTestPak(t, path, ReaderOptions{})

	out := filepath.Join(t.TempDir(), "out")
	if _, err := r.Extract(context.Background(), out, ExtractOptions{SanitizeNames: true}); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got := readOutput(t, out, "Maps/_CON.txt"); string(got) != "device" {
		t.Fatalf("Maps/_CON.txt=%q", got)
	}

	if got := readOutput(t, out, "Maps/ab_c.txt"); string(got) != "colon" {
		t.Fatalf("Maps/ab_c.txt=%q", got)
	}
}

func TestExtract_SelectedEntriesAndCallbacks(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{
		{path: "keep/a.txt", data: []byte("a")},
		{path: "keep/b.txt", data: []byte("bb")},
		{path: "skip/c.txt", data: []byte("ccc")},
	})
	r := openTestPak(t, path, ReaderOptions{})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	done := make(map[string]int64)
	out := filepath.Join(t.TempDir(), "out")
	res, err := r.Extract(context.Background(), out, ExtractOptions{
		Entries: FilterEntries(r.Entries(), "keep"),
		Logger:  logger,
		OnEntryDone: func(entry EntryInfo, written int64, outputPath string) {
			if !strings.HasPrefix(outputPath, out) {
				t.Errorf("output %q not under %q", outputPath, out)
			}
			done[entry.Path] = written
		},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if res.Written != 2 || done["keep/a.txt"] != 1 || done["keep/b.txt"] != 2 {
		t.Fatalf("result %+v, callbacks %v", res, done)
	}

	if _, err := os.Stat(filepath.Join(out, "skip")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unselected entry extracted: %v", err)
	}

	if !strings.Contains(logs.String(), "extracted entry") {
		t.Fatalf("missing debug record in log output: %q", logs.String())
	}
}

func TestExtract_CorruptEntryIsCollected(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{
		{path: "bad.txt", data: []byte("payload")},
		{path: "good.txt", data: []byte("fine")},
	})

	r := openTestPak(t, path, ReaderOptions{})
	bad, err := r.Lookup("bad.txt")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	_ = r.Close()

	patchFile(t, path, func(b []byte) { b[bad.Offset] ^= 0xff })
	r = openTestPak(t, path, ReaderOptions{})

	out := filepath.Join(t.TempDir(), "out")
	res, err := r.Extract(context.Background(), out, ExtractOptions{MaxWorkers: 1})
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}

	if res.Written != 1 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := readOutput(t, out, "good.txt"); string(got) != "fine" {
		t.Fatalf("good.txt=%q", got)
	}
}

func TestExtract_Cancelled(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{{path: "a.txt", data: []byte("a")}})
	r := openTestPak(t, path, ReaderOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := filepath.Join(t.TempDir(), "out")
	if _, err := r.Extract(ctx, out, ExtractOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(out, "a.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("entry written after cancel: %v", err)
	}
}

func TestExtract_ClosedReader(t *testing.T) {
	t.Parallel()

	path := writeTestPak(t, WriterOptions{}, []testEntry{{path: "a.txt", data: []byte("a")}})
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = r.Close()

	if _, err := r.Extract(context.Background(), t.TempDir(), ExtractOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExtract_OutputCollision(t *testing.T) {
	t.Parallel()

	path := craftPak(t, VersionContentHash, "", []craftedEntry{
		{info: EntryInfo{Path: "x/y.txt"}, payload: []byte("first")},
		{info: EntryInfo{Path: `x\y.txt`}, payload: []byte("second")},
		{info: EntryInfo{Path: "x/z.txt"}, payload: []byte("other")},
	}, craftOptions{})

	r := openTestPak(t, path, ReaderOptions{})
	out := filepath.Join(t.TempDir(), "out")
	res, err := r.Extract(context.Background(), out, ExtractOptions{MaxWorkers: 4})
	if !errors.Is(err, ErrDuplicateEntryPath) {
		t.Fatalf("expected ErrDuplicateEntryPath, got %v", err)
	}

	if res.Written != 2 || res.Skipped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	if got := readOutput(t, out, "x/y.txt"); string(got) != "first" {
		t.Fatalf("x/y.txt=%q", got)
	}

	if got := readOutput(t, out, "x/z.txt"); string(got) != "other" {
		t.Fatalf("x/z.txt=%q", got)
	}
}
