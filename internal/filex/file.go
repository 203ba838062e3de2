// Package filex holds file helpers used around sync: data directories, temp
// files that must never outlive a request, and atomic replacement of the
// collection file. Everything goes through an afero.Fs so tests can run
// against memory.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
)

// EnsureDir expands a leading "~" in dir, creates it if needed and returns
// the absolute path.
func EnsureDir(fsys afero.Fs, dir string) (string, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", dir, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", expanded, err)
	}
	if err := fsys.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// TempFile creates a temp file in dir. The caller owns cleanup, normally via
// RemoveQuietly in a defer.
func TempFile(fsys afero.Fs, dir, pattern string) (afero.File, error) {
	if err := fsys.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := afero.TempFile(fsys, dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	return f, nil
}

// CloseAndRemove closes f and deletes it, ignoring errors.
func CloseAndRemove(fsys afero.Fs, f afero.File) {
	if f == nil {
		return
	}
	_ = f.Close()
	RemoveQuietly(fsys, f.Name())
}

// RemoveQuietly deletes path if it exists.
func RemoveQuietly(fsys afero.Fs, path string) {
	if path == "" {
		return
	}
	_ = fsys.Remove(path)
}

// Replace moves src over dst. On one file system a rename is atomic, so dst
// is either the old file or the complete new one.
func Replace(fsys afero.Fs, src, dst string) error {
	if err := fsys.Rename(src, dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

// CopyFile copies src to dst, truncating dst.
func CopyFile(fsys afero.Fs, src, dst string) (err error) {
	in, err := fsys.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
