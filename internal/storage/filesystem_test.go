package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFindFiles(t *testing.T) {
	f := NewMemoryFileSystem()
	root := filepath.Join("data", "fonts")
	for _, p := range []string{
		"b.ttf",
		"a/z.otf",
		"a/deep/er/x.woff2",
		"a/.DS_Store",
		"node_modules/pkg/icons.woff",
		"README.md",
	} {
		if err := f.WriteFile(filepath.Join(root, filepath.FromSlash(p)), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := f.FindFiles(root, []string{"**/node_modules", "**/.*"})
	if err != nil {
		t.Fatalf("FindFiles() error = %v", err)
	}
	want := []string{
		filepath.Join(root, "README.md"),
		filepath.Join(root, "a", "deep", "er", "x.woff2"),
		filepath.Join(root, "a", "z.otf"),
		filepath.Join(root, "b.ttf"),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindFiles() mismatch (-want +got):\n%s", diff)
	}
}

func TestFindFiles_Errors(t *testing.T) {
	f := NewMemoryFileSystem()
	if _, err := f.FindFiles("missing", nil); err == nil {
		t.Error("FindFiles(missing) = nil error")
	}
	if _, err := f.FindFiles("data", []string{"[unclosed"}); err == nil {
		t.Error("FindFiles(bad pattern) = nil error")
	}
}

func TestResolve(t *testing.T) {
	f := &FileSystem{baseDir: filepath.Join("srv", "fonts")}
	tests := []struct {
		in   string
		want string
	}{
		{"", filepath.Join("srv", "fonts")},
		{"serif", filepath.Join("srv", "fonts", "serif")},
		{"a/b/../c", filepath.Join("srv", "fonts", "a", "c")},
		{"../../etc", filepath.Join("srv", "fonts", "etc")},
	}
	for _, tt := range tests {
		got, err := f.Resolve(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Resolve(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := f.Resolve("ok"); errors.Is(err, ErrOutsideRoot) {
		t.Error("Resolve(ok) rejected")
	}
}
