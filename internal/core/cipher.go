package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/navagetur/tokenseal/internal/crypto"
)

var (
	ErrEmptyPassword = errors.New("password must not be empty")
	ErrDestroyed     = errors.New("cipher has been destroyed")

	// Re-exported so callers only need this package.
	ErrAuthFailed   = crypto.ErrAuthFailed
	ErrInvalidToken = crypto.ErrInvalidToken
	ErrEncoding     = crypto.ErrEncoding
)

// SaltMode selects how a Cipher obtains its salt.
type SaltMode int

const (
	FreshSalt    SaltMode = iota // Generate a new random salt
	ExistingSalt                 // Load a previously persisted salt
)

func (m SaltMode) String() string {
	switch m {
	case FreshSalt:
		return "fresh"
	case ExistingSalt:
		return "existing"
	default:
		return fmt.Sprintf("SaltMode(%d)", int(m))
	}
}

// Options tune fresh-salt construction. They are ignored for ExistingSalt.
type Options struct {
	// PersistSaltImmediately writes a freshly generated salt before the
	// constructor returns. Otherwise the caller must call SaveSalt.
	PersistSaltImmediately bool
	// OverwriteSalt allows a fresh salt to replace an existing salt file.
	// Tokens produced under the old salt become undecryptable.
	OverwriteSalt bool
}

// Cipher encrypts and decrypts text under a key derived from one password
// and one salt. The key is fixed at construction. Encrypt and Decrypt are
// safe for concurrent use.
type Cipher struct {
	loc   Location
	salt  []byte
	enc   *crypto.Encryptor
	store saltStore

	saveMu    sync.Mutex // serialises SaveSalt
	persisted atomic.Bool
	destroyed atomic.Bool
}

// New builds a Cipher, generating or loading the salt according to mode.
func New(password []byte, loc Location, mode SaltMode, opts Options) (*Cipher, error) {
	switch mode {
	case FreshSalt:
		return NewFreshSalt(password, loc, opts)
	case ExistingSalt:
		return NewExistingSalt(password, loc)
	default:
		return nil, fmt.Errorf("unknown salt mode %v", mode)
	}
}

// NewFreshSalt generates a random salt and derives the key from it.
// It refuses to replace an existing salt file unless opts.OverwriteSalt is set.
// The existence check and the later write are separate steps: callers that
// may race on one location must serialise construction and SaveSalt
// themselves, otherwise the last write wins.
func NewFreshSalt(password []byte, loc Location, opts Options) (*Cipher, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	store := saltStore{loc: loc}
	if !opts.OverwriteSalt {
		exists, err := store.exists()
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrSaltExists, loc.SaltPath())
		}
	}

	kdf, err := crypto.NewKDF()
	if err != nil {
		return nil, fmt.Errorf("failed to create KDF: %w", err)
	}

	c, err := newCipher(password, kdf, store)
	if err != nil {
		return nil, err
	}

	if opts.PersistSaltImmediately {
		if err := c.SaveSalt(); err != nil {
			c.Destroy()
			return nil, err
		}
	}

	return c, nil
}

// NewExistingSalt loads the persisted salt and re-derives the key.
func NewExistingSalt(password []byte, loc Location) (*Cipher, error) {
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	store := saltStore{loc: loc}
	salt, err := store.load()
	if err != nil {
		return nil, err
	}

	c, err := newCipher(password, &crypto.KDF{Salt: salt, Iterations: crypto.DefaultIters}, store)
	if err != nil {
		return nil, err
	}
	c.persisted.Store(true)
	return c, nil
}

// Open loads the salt when the salt file exists and otherwise generates and
// immediately persists a fresh one.
func Open(password []byte, loc Location) (*Cipher, SaltMode, error) {
	exists, err := saltStore{loc: loc}.exists()
	if err != nil {
		return nil, FreshSalt, err
	}

	if exists {
		c, err := NewExistingSalt(password, loc)
		return c, ExistingSalt, err
	}

	c, err := NewFreshSalt(password, loc, Options{PersistSaltImmediately: true})
	return c, FreshSalt, err
}

// SaltExists reports whether loc already holds a salt file.
func SaltExists(loc Location) (bool, error) {
	return saltStore{loc: loc}.exists()
}

// CheckSalt loads the salt file without deriving a key, reporting
// ErrSaltNotFound, ErrSaltFormat or a *StorageError.
func CheckSalt(loc Location) error {
	_, err := saltStore{loc: loc}.load()
	return err
}

func checkPassword(password []byte) error {
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if !utf8.Valid(password) {
		return fmt.Errorf("%w: password", ErrEncoding)
	}
	return nil
}

func newCipher(password []byte, kdf *crypto.KDF, store saltStore) (*Cipher, error) {
	key := kdf.DeriveKey(password)

	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		crypto.ClearBytes(key)
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	return &Cipher{
		loc:   store.loc,
		salt:  kdf.Salt,
		enc:   enc,
		store: store,
	}, nil
}

// Encrypt returns a base64url token carrying nonce, ciphertext and tag.
// Every call uses a fresh nonce, so equal inputs give different tokens.
func (c *Cipher) Encrypt(plaintext string) ([]byte, error) {
	if c.destroyed.Load() {
		return nil, ErrDestroyed
	}
	return c.enc.EncryptString(plaintext)
}

// Decrypt authenticates and decrypts a token produced by Encrypt.
// It returns ErrAuthFailed for tampered, malformed or foreign tokens and
// ErrEncoding when the authenticated plaintext is not UTF-8.
func (c *Cipher) Decrypt(token []byte) (string, error) {
	if c.destroyed.Load() {
		return "", ErrDestroyed
	}
	return c.enc.DecryptString(token)
}

// SaveSalt writes the salt to the configured location, replacing any
// previous content.
func (c *Cipher) SaveSalt() error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	if err := c.store.save(c.salt); err != nil {
		return err
	}
	c.persisted.Store(true)
	return nil
}

// SaltPersisted reports whether the salt is known to be on disk.
func (c *Cipher) SaltPersisted() bool {
	return c.persisted.Load()
}

// Salt returns a copy of the salt.
func (c *Cipher) Salt() []byte {
	return append([]byte(nil), c.salt...)
}

// Location returns where the salt is stored.
func (c *Cipher) Location() Location {
	return c.loc
}

// Destroy zeroes the derived key bytes. The Cipher cannot be used afterwards.
func (c *Cipher) Destroy() {
	if c.destroyed.CompareAndSwap(false, true) {
		c.enc.Destroy()
	}
}
