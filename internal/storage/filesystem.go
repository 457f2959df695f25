package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// ErrOutsideRoot is returned for paths that escape the base directory.
var ErrOutsideRoot = errors.New("storage: path escapes base directory")

// FileSystem provides an abstraction over file operations using afero
type FileSystem struct {
	fs      afero.Fs
	baseDir string
}

// NewFileSystem creates a FileSystem rooted at baseDir on the OS filesystem.
// If the directory cannot be created it falls back to memory.
func NewFileSystem(baseDir string) *FileSystem {
	if baseDir == "" {
		baseDir = "data"
	}

	fs := afero.NewOsFs()
	if err := fs.MkdirAll(baseDir, 0755); err != nil {
		fs = afero.NewMemMapFs()
	}

	return &FileSystem{
		fs:      fs,
		baseDir: baseDir,
	}
}

// NewReadOnlyFileSystem exposes an existing directory without allowing
// writes, used for the font folder that scans read from.
func NewReadOnlyFileSystem(baseDir string) *FileSystem {
	return &FileSystem{
		fs:      afero.NewReadOnlyFs(afero.NewOsFs()),
		baseDir: baseDir,
	}
}

// NewMemoryFileSystem creates a FileSystem backed by memory (useful for testing)
func NewMemoryFileSystem() *FileSystem {
	return &FileSystem{
		fs:      afero.NewMemMapFs(),
		baseDir: "data",
	}
}

// Resolve maps a slash-separated path relative to the base directory to a
// filesystem path, rejecting anything that leaves the base.
func (f *FileSystem) Resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash("/" + rel))
	full := filepath.Join(f.baseDir, clean)
	r, err := filepath.Rel(f.baseDir, full)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, rel)
	}
	return full, nil
}

// FindFiles walks dir recursively and returns every regular file, depth
// first and lexically ordered within each directory. Paths matching one of
// the doublestar exclude patterns (relative to dir, slash separated) are
// left out; an excluded directory is not entered.
func (f *FileSystem) FindFiles(dir string, excludes []string) ([]string, error) {
	for _, p := range excludes {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	var files []string
	err := afero.Walk(f.fs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := filepath.Rel(dir, path)
		if rerr != nil {
			return rerr
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && excluded(rel, excludes) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return files, nil
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// WriteFile writes data to a file
func (f *FileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return afero.WriteFile(f.fs, path, data, perm)
}

// Create creates a new file
func (f *FileSystem) Create(path string) (afero.File, error) {
	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return f.fs.Create(path)
}

// Open opens a file for reading
func (f *FileSystem) Open(path string) (afero.File, error) {
	return f.fs.Open(path)
}

// Remove removes a file
func (f *FileSystem) Remove(path string) error {
	return f.fs.Remove(path)
}

// Rename renames (moves) a file
func (f *FileSystem) Rename(oldpath, newpath string) error {
	return f.fs.Rename(oldpath, newpath)
}

// Exists checks if a file or directory exists
func (f *FileSystem) Exists(path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

// IsDir checks if path is a directory
func (f *FileSystem) IsDir(path string) (bool, error) {
	return afero.IsDir(f.fs, path)
}

// Stat returns file info
func (f *FileSystem) Stat(path string) (os.FileInfo, error) {
	return f.fs.Stat(path)
}

// ReadDir lists a directory sorted by name
func (f *FileSystem) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(f.fs, path)
}
