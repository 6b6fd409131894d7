package security

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes storage directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines file operations to a storage directory using os.Root.
// Salt files and vault files are always addressed relative to that directory.
type PathValidator struct {
	root *os.Root
	dir  string
}

// New opens the storage directory at dir. The directory must already exist.
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage directory: %w", err)
	}

	return &PathValidator{
		root: root,
		dir:  absPath,
	}, nil
}

// Close releases the directory handle.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute storage directory.
func (pv *PathValidator) Dir() string {
	return pv.dir
}

// Join returns the platform path of name inside the storage directory.
// It does not validate name; use ValidateAndNormalize first.
func (pv *PathValidator) Join(name string) string {
	return filepath.Join(pv.dir, filepath.FromSlash(name))
}

// ValidateAndNormalize validates a user-provided file name and returns a
// normalized relative path. It rejects:
// - Empty paths
// - Absolute paths
// - Paths that escape the storage directory (using ..)
// - Paths that are not local (reserved names and the like)
func (pv *PathValidator) ValidateAndNormalize(name string) (string, error) {
	return ValidateName(name)
}

// ValidateName performs the lexical checks of ValidateAndNormalize without
// needing an open directory.
func ValidateName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(name) {
		if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, name)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, name)
	}

	cleanPath := filepath.Clean(name)
	if !filepath.IsLocal(cleanPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, cleanPath)
	}

	return filepath.ToSlash(cleanPath), nil
}

// Exists reports whether name exists inside the storage directory.
func (pv *PathValidator) Exists(name string) (bool, error) {
	if _, err := pv.StatInRoot(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReadFileInRoot reads a file inside the storage directory.
func (pv *PathValidator) ReadFileInRoot(name string) ([]byte, error) {
	clean, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.ReadFile(filepath.FromSlash(clean))
}

// StatInRoot stats a file inside the storage directory.
func (pv *PathValidator) StatInRoot(name string) (os.FileInfo, error) {
	clean, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Stat(filepath.FromSlash(clean))
}

// WriteFileAtomic writes data to a temporary sibling and renames it over name,
// so readers never observe a partially written file.
func (pv *PathValidator) WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	clean, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	target := filepath.FromSlash(clean)
	tmp := target + ".tmp"

	f, err := pv.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		pv.root.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		pv.root.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		pv.root.Remove(tmp)
		return err
	}

	if err := pv.root.Rename(tmp, target); err != nil {
		pv.root.Remove(tmp)
		return err
	}
	return nil
}

// RemoveInRoot removes a file inside the storage directory.
func (pv *PathValidator) RemoveInRoot(name string) error {
	clean, err := pv.ValidateAndNormalize(name)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.Remove(filepath.FromSlash(clean))
}
