package pak

import (
	"strings"
	"testing"
)

func TestSanitizePathSegment(t *testing.T) {
	t.Parallel()

	longName := strings.Repeat("a", 400)
	gotLong, err := sanitizePathSegment(longName)
	if err != nil {
		t.Fatalf("sanitizePathSegment(long): %v", err)
	}
	if len(gotLong) > maxSanitizedSegmentLen {
		t.Fatalf("len(long)=%d, want <= %d", len(gotLong), maxSanitizedSegmentLen)
	}
	if gotLong == longName {
		t.Fatal("long segment was not shortened")
	}

	testCases := []struct {
		in   string
		want string
	}{
		{in: "CON.txt", want: "_CON.txt"},
		{in: "  COM8.c  ", want: "_COM8.c"},
		{in: ".{22877a6d-37a1-461a-91b0-dbda5aaebc99}", want: "_{22877a6d-37a1-461a-91b0-dbda5aaebc99}"},
		{in: "abc.{22877a6d-37a1-461a-91b0-dbda5aaebc99}", want: "abc_{22877a6d-37a1-461a-91b0-dbda5aaebc99}"},
		{in: "a:b?.txt", want: "a_b_.txt"},
		{in: "name. ", want: "name"},
		{in: "AUX:", want: "_AUX_"},
		{in: "CLOCK$.cfg", want: "_CLOCK$.cfg"},
		{in: "$ADDSTOR", want: "_$ADDSTOR"},
		{in: "a\x1b[31m.txt", want: "a_[31m.txt"},
		{in: "a\x7fb.txt", want: "a_b.txt"},
		{in: "a\u200fb.txt", want: "a_b.txt"},
		{in: "..", want: "_"},
	}

	for _, tc := range testCases {
		got, err := sanitizePathSegment(tc.in)
		if err != nil {
			t.Fatalf("sanitizePathSegment(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("sanitizePathSegment(%q)=%q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsReservedDeviceName(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		want bool
	}{
		{name: "con", want: true},
		{name: "con.txt", want: true},
		{name: "AUX:", want: true},
		{name: "pointer$.txt", want: true},
		{name: "normal.txt", want: false},
		{name: "_con.txt", want: false},
	}

	for _, tc := range testCases {
		if got := isReservedDeviceName(tc.name); got != tc.want {
			t.Fatalf("isReservedDeviceName(%q)=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSanitizeOutputPathsCollision(t *testing.T) {
	t.Parallel()

	got, err := sanitizeOutputPaths([]string{"ab:c.txt", "ab?c.txt", "AB_C.txt"})
	if err != nil {
		t.Fatalf("sanitizeOutputPaths: %v", err)
	}

	want := []string{"ab_c.txt", "ab_c~2.txt", "AB_C~3.txt"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizeOutputPathsMangled(t *testing.T) {
	t.Parallel()

	got, err := sanitizeOutputPaths([]string{
		`\\\\\:\`,
		`..\evil.txt`,
		`Content\abc.{22877a6d-37a1-461a-91b0-dbda5aaebc99}\COM8.c`,
	})
	if err != nil {
		t.Fatalf("sanitizeOutputPaths: %v", err)
	}

	want := []string{
		"_",
		"_/evil.txt",
		"Content/abc_{22877a6d-37a1-461a-91b0-dbda5aaebc99}/_COM8.c",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d]=%q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	got, err := SanitizePath(`Game\PRN.txt`)
	if err != nil {
		t.Fatalf("SanitizePath: %v", err)
	}

	if got != "Game/_PRN.txt" {
		t.Fatalf("SanitizePath=%q, want Game/_PRN.txt", got)
	}

	if got, err := SanitizePath(""); err != nil || got != "" {
		t.Fatalf("SanitizePath(empty)=%q, %v", got, err)
	}
}

func TestSanitizeDisplayPath(t *testing.T) {
	t.Parallel()

	testCases := map[string]string{
		"Game/a.txt":          "Game/a.txt",
		"a\x1b[2Jb":           "a_[2Jb",
		"name\u202etxt.exe":   "name_txt.exe",
		`dir\keeps\separator`: `dir\keeps\separator`,
	}

	for in, want := range testCases {
		if got := SanitizeDisplayPath(in); got != want {
			t.Fatalf("SanitizeDisplayPath(%q)=%q, want %q", in, got, want)
		}
	}
}
