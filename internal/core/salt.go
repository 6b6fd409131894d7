package core

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/navagetur/tokenseal/internal/crypto"
	"github.com/navagetur/tokenseal/internal/security"
)

const (
	DefaultSaltFile = "salt.txt"
	FilePermSecure  = 0600 // File: owner rw only
)

var (
	ErrSaltNotFound = errors.New("salt file not found")
	ErrSaltFormat   = errors.New("invalid salt file")
	ErrSaltExists   = errors.New("salt file already exists")
)

// StorageError reports a failed read or write of persisted state.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Location names where a salt file lives. Dir must exist.
type Location struct {
	Dir      string
	SaltFile string
}

func (loc Location) saltFile() string {
	if loc.SaltFile == "" {
		return DefaultSaltFile
	}
	return loc.SaltFile
}

// SaltPath returns the resolved salt file path.
func (loc Location) SaltPath() string {
	return filepath.Join(loc.Dir, filepath.FromSlash(loc.saltFile()))
}

// saltStore reads and writes a single salt file inside a storage directory.
type saltStore struct {
	loc Location
}

func (s saltStore) open() (*security.PathValidator, error) {
	if _, err := security.ValidateName(s.loc.saltFile()); err != nil {
		return nil, &StorageError{Op: "resolve", Path: s.loc.saltFile(), Err: err}
	}
	pv, err := security.New(s.loc.Dir)
	if err != nil {
		return nil, &StorageError{Op: "open", Path: s.loc.Dir, Err: err}
	}
	return pv, nil
}

// exists reports whether the salt file is present.
func (s saltStore) exists() (bool, error) {
	pv, err := s.open()
	if err != nil {
		return false, err
	}
	defer pv.Close()

	ok, err := pv.Exists(s.loc.saltFile())
	if err != nil {
		return false, &StorageError{Op: "stat", Path: pv.Join(s.loc.saltFile()), Err: err}
	}
	return ok, nil
}

// load reads the salt and checks it is exactly crypto.SaltSize bytes.
func (s saltStore) load() ([]byte, error) {
	pv, err := s.open()
	if err != nil {
		return nil, err
	}
	defer pv.Close()

	path := pv.Join(s.loc.saltFile())
	salt, err := pv.ReadFileInRoot(s.loc.saltFile())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSaltNotFound, path)
		}
		return nil, &StorageError{Op: "read salt", Path: path, Err: err}
	}
	if len(salt) != crypto.SaltSize {
		return nil, fmt.Errorf("%w: %s has %d bytes, want %d", ErrSaltFormat, path, len(salt), crypto.SaltSize)
	}
	return salt, nil
}

// save writes the salt atomically with owner-only permissions.
func (s saltStore) save(salt []byte) error {
	pv, err := s.open()
	if err != nil {
		return err
	}
	defer pv.Close()

	if err := pv.WriteFileAtomic(s.loc.saltFile(), salt, FilePermSecure); err != nil {
		return &StorageError{Op: "write salt", Path: pv.Join(s.loc.saltFile()), Err: err}
	}
	return nil
}
