package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/navagetur/tokenseal/internal/crypto"
	"github.com/navagetur/tokenseal/internal/git"
	"github.com/navagetur/tokenseal/internal/security"
	"github.com/navagetur/tokenseal/internal/storage"
)

const (
	DefaultVaultFile    = ".tokenseal"
	MaxNameLength       = 256
	passwordCheckString = "tokenseal-password-check"
	checksumKey         = "checksum"
	pendingSaltSuffix   = ".pending"
)

var (
	ErrNotInitialized   = errors.New("vault not initialized")
	ErrAlreadyExists    = errors.New("vault already exists")
	ErrWrongPassword    = errors.New("wrong password")
	ErrPasswordRequired = errors.New("password required")
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidName      = errors.New("invalid token name")
)

// Vault stores named tokens, encrypted by a Cipher, in a bbolt file that
// sits next to the salt file.
type Vault struct {
	loc       Location
	name      string // vault file name relative to loc.Dir
	path      string
	validator *security.PathValidator
	log       *slog.Logger
}

// InitOptions control vault creation.
type InitOptions struct {
	// ReuseSalt keeps an existing salt file so that tokens produced earlier
	// with the same password remain decryptable.
	ReuseSalt bool
	// OverwriteSalt replaces an existing salt file with a fresh salt.
	OverwriteSalt bool
}

// NewVault opens the storage directory of loc. vaultFile defaults to
// DefaultVaultFile. A nil logger discards diagnostics.
func NewVault(loc Location, vaultFile string, logger *slog.Logger) (*Vault, error) {
	if vaultFile == "" {
		vaultFile = DefaultVaultFile
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	validator, err := security.New(loc.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path validator: %w", err)
	}

	name, err := validator.ValidateAndNormalize(vaultFile)
	if err != nil {
		validator.Close()
		return nil, fmt.Errorf("invalid vault file: %w", err)
	}
	if _, err := validator.ValidateAndNormalize(loc.saltFile()); err != nil {
		validator.Close()
		return nil, fmt.Errorf("invalid salt file: %w", err)
	}

	return &Vault{
		loc:       loc,
		name:      name,
		path:      validator.Join(name),
		validator: validator,
		log:       logger.With("vault", validator.Join(name)),
	}, nil
}

// Close releases resources held by the Vault
func (v *Vault) Close() error {
	if v.validator != nil {
		return v.validator.Close()
	}
	return nil
}

// Path returns the vault database path
func (v *Vault) Path() string {
	return v.path
}

// Location returns the salt location used by the vault
func (v *Vault) Location() Location {
	return v.loc
}

// Exists reports whether the vault file is present
func (v *Vault) Exists() bool {
	_, err := os.Stat(v.path)
	return err == nil
}

// ValidateName checks that a token name is usable as a key and printable.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

func (v *Vault) open() (*storage.Storage, error) {
	if !v.Exists() {
		return nil, ErrNotInitialized
	}
	db, err := storage.Open(v.path)
	if err != nil {
		return nil, err
	}
	ok, err := db.IsInitialized()
	if err != nil || !ok {
		db.Close()
		return nil, ErrNotInitialized
	}
	return db, nil
}

// unlock derives the key from the stored salt and checks it against the
// vault checksum.
func (v *Vault) unlock(ctx context.Context, db *storage.Storage, password []byte) (*Cipher, error) {
	if password == nil {
		return nil, ErrPasswordRequired
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := NewExistingSalt(password, v.loc)
	if err != nil {
		return nil, err
	}

	err = verifyChecksum(db, c)
	if err == nil {
		return c, nil
	}
	c.Destroy()
	if !errors.Is(err, ErrWrongPassword) {
		return nil, err
	}

	// The vault may already be under the salt of an unfinished rotation
	if rc, rerr := v.recoverPendingSalt(db, password); rerr == nil {
		return rc, nil
	}
	return nil, err
}

func (v *Vault) pendingLocation() Location {
	return Location{Dir: v.loc.Dir, SaltFile: v.loc.saltFile() + pendingSaltSuffix}
}

// recoverPendingSalt completes a salt rotation whose final swap did not
// happen. The pending salt is promoted only when it opens the vault.
func (v *Vault) recoverPendingSalt(db *storage.Storage, password []byte) (*Cipher, error) {
	pending := v.pendingLocation()
	c, err := NewExistingSalt(password, pending)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(db, c); err != nil {
		c.Destroy()
		return nil, err
	}

	v.log.Warn("completing interrupted salt rotation", "pending", pending.SaltPath())
	if err := (saltStore{loc: v.loc}).save(c.Salt()); err != nil {
		v.log.Warn("salt file not restored, pending salt kept", "error", err)
		return c, nil
	}
	if err := v.validator.RemoveInRoot(pending.saltFile()); err != nil {
		v.log.Warn("failed to remove pending salt", "error", err)
	}
	return c, nil
}

func verifyChecksum(db *storage.Storage, c *Cipher) error {
	encChecksum, err := db.GetMetadataBytes(checksumKey)
	if err != nil {
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	check, err := c.Decrypt(encChecksum)
	if err != nil || !crypto.ConstantTimeCompare([]byte(check), []byte(passwordCheckString)) {
		return ErrWrongPassword
	}
	return nil
}

// Init creates a new vault. Unless opts.ReuseSalt is set a fresh salt is
// generated; it is persisted only after the vault is written.
func (v *Vault) Init(ctx context.Context, password []byte, opts InitOptions) error {
	if v.Exists() {
		return ErrAlreadyExists
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		c   *Cipher
		err error
	)
	if opts.ReuseSalt {
		c, err = NewExistingSalt(password, v.loc)
	} else {
		c, err = NewFreshSalt(password, v.loc, Options{OverwriteSalt: opts.OverwriteSalt})
	}
	if err != nil {
		return err
	}
	defer c.Destroy()

	if err := v.create(c); err != nil {
		os.Remove(v.path)
		return err
	}

	if !c.SaltPersisted() {
		if err := c.SaveSalt(); err != nil {
			os.Remove(v.path)
			return err
		}
	}

	v.log.Info("vault initialized", "salt", v.loc.SaltPath(), "reused_salt", opts.ReuseSalt)
	return nil
}

func (v *Vault) create(c *Cipher) error {
	db, err := storage.Open(v.path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if err := db.Initialize(crypto.DefaultIters); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	checksum, err := c.Encrypt(passwordCheckString)
	if err != nil {
		return fmt.Errorf("failed to encrypt checksum: %w", err)
	}
	if err := db.StoreMetadataBytes(checksumKey, checksum); err != nil {
		return fmt.Errorf("failed to store checksum: %w", err)
	}
	return nil
}

// VerifyPassword checks a password against the vault
func (v *Vault) VerifyPassword(password []byte) error {
	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := v.unlock(context.Background(), db, password)
	if err != nil {
		return err
	}
	c.Destroy()
	return nil
}

// Put encrypts value and stores it under name, replacing any previous value.
func (v *Vault) Put(ctx context.Context, name, value string, password []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := v.unlock(ctx, db, password)
	if err != nil {
		return err
	}
	defer c.Destroy()

	token, err := c.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", name, err)
	}

	prev, err := db.GetEntry(name)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	if err := db.PutToken(storage.NewEntry(name, len(token), prev), token); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}

	v.log.Info("token stored", "name", name, "replaced", prev != nil)
	return nil
}

// Get decrypts the token stored under name.
func (v *Vault) Get(ctx context.Context, name string, password []byte) (string, error) {
	db, err := v.open()
	if err != nil {
		return "", err
	}
	defer db.Close()

	c, err := v.unlock(ctx, db, password)
	if err != nil {
		return "", err
	}
	defer c.Destroy()

	token, err := db.GetToken(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrTokenNotFound, name)
		}
		return "", err
	}

	value, err := c.Decrypt(token)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s: %w", name, err)
	}
	v.log.Debug("token read", "name", name)
	return value, nil
}

// Remove deletes the tokens whose names match any of the patterns (exact
// names or path.Match globs) and returns the removed names.
func (v *Vault) Remove(ctx context.Context, patterns []string, password []byte) ([]string, error) {
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	c, err := v.unlock(ctx, db, password)
	if err != nil {
		return nil, err
	}
	c.Destroy()

	entries, err := db.GetEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	matched, err := matchNames(entries, patterns)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrTokenNotFound, patterns)
	}

	var removed []string
	for _, name := range matched {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := db.DeleteToken(name); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed = append(removed, name)
		v.log.Info("token removed", "name", name)
	}
	return removed, nil
}

func matchNames(entries []storage.Entry, patterns []string) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		for _, pattern := range patterns {
			ok, err := path.Match(pattern, entry.Name)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
			}
			if (ok || pattern == entry.Name) && !seen[entry.Name] {
				seen[entry.Name] = true
				names = append(names, entry.Name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// List returns stored token entries (no password required)
func (v *Vault) List(ctx context.Context) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	entries, err := db.GetEntries()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// StatusInfo contains status information
type StatusInfo struct {
	Tokens        []storage.Entry
	TotalSize     int
	Created       time.Time
	Modified      time.Time
	Algorithm     string
	KDF           string
	KDFIterations uint32
	SaltPath      string
	SaltPresent   bool
	SaltValid     bool
	VaultID       string
	GitStatus     *git.GitStatus
}

// Status returns the current status (no password required)
func (v *Vault) Status(ctx context.Context) (*StatusInfo, error) {
	entries, err := v.List(ctx)
	if err != nil {
		return nil, err
	}

	db, err := v.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	status := &StatusInfo{
		Tokens:    entries,
		Algorithm: "AES-256-GCM",
		KDF:       "PBKDF2-HMAC-SHA256",
		SaltPath:  v.loc.SaltPath(),
	}
	for _, e := range entries {
		status.TotalSize += e.Size
	}

	// Not critical, zero values are shown as unknown
	status.Created, _ = db.GetCreated()
	status.Modified, _ = db.GetModified()
	status.KDFIterations, _ = db.GetIterations()
	status.VaultID, _ = db.GetVaultID()

	status.SaltPresent, _ = SaltExists(v.loc)
	if status.SaltPresent {
		status.SaltValid = CheckSalt(v.loc) == nil
	}

	rel, err := v.validator.ValidateAndNormalize(v.loc.saltFile())
	if err == nil {
		gitStatus, err := git.CheckGitIntegration(ctx, v.validator.Dir(), rel, v.name, []string{".env"})
		if err == nil && gitStatus.IsRepo {
			status.GitStatus = gitStatus
		}
	}

	return status, nil
}

// Diff compares the stored value of name with candidate and returns a
// unified diff, empty when they match.
func (v *Vault) Diff(ctx context.Context, name, candidate string, password []byte) (string, error) {
	stored, err := v.Get(ctx, name, password)
	if err != nil {
		return "", err
	}
	return GenerateUnifiedDiff(name, stored, candidate), nil
}

// PasswordOptions control ChangePassword.
type PasswordOptions struct {
	// RotateSalt replaces the salt file with a fresh salt. Tokens encrypted
	// outside the vault with the old salt can then no longer be decrypted.
	RotateSalt bool
}

// ChangePassword re-encrypts every token under a new password. The salt
// file is kept unless opts.RotateSalt is set, since other tokens may share
// it. A rotated salt is staged in a pending file before the vault is
// rewritten; unlock promotes it if the final swap never happened.
func (v *Vault) ChangePassword(ctx context.Context, currentPassword, newPassword []byte, opts PasswordOptions) error {
	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()

	oldCipher, err := v.unlock(ctx, db, currentPassword)
	if err != nil {
		return err
	}
	defer oldCipher.Destroy()

	if err := ctx.Err(); err != nil {
		return err
	}
	var newCipher *Cipher
	if opts.RotateSalt {
		newCipher, err = NewFreshSalt(newPassword, v.loc, Options{OverwriteSalt: true})
	} else {
		newCipher, err = NewExistingSalt(newPassword, v.loc)
	}
	if err != nil {
		return err
	}
	defer newCipher.Destroy()

	// Phase 1: decrypt and re-encrypt everything in memory
	tokens := make(map[string][]byte)
	err = db.ForEachToken(func(name string, token []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := oldCipher.Decrypt(token)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", name, err)
		}
		fresh, err := newCipher.Encrypt(value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", name, err)
		}
		tokens[name] = fresh
		return nil
	})
	if err != nil {
		return err
	}

	checksum, err := newCipher.Encrypt(passwordCheckString)
	if err != nil {
		return fmt.Errorf("failed to encrypt checksum: %w", err)
	}

	if !opts.RotateSalt {
		if err := db.ReplaceAll(tokens, checksum); err != nil {
			return fmt.Errorf("failed to rewrite vault: %w", err)
		}
		v.log.Info("password changed", "tokens", len(tokens), "salt_rotated", false)
		return nil
	}

	// Phase 2: stage the salt, commit the vault, then swap the salt in
	pending := saltStore{loc: v.pendingLocation()}
	if err := pending.save(newCipher.Salt()); err != nil {
		return err
	}

	if err := db.ReplaceAll(tokens, checksum); err != nil {
		v.validator.RemoveInRoot(pending.loc.saltFile())
		return fmt.Errorf("failed to rewrite vault: %w", err)
	}

	if err := newCipher.SaveSalt(); err != nil {
		return fmt.Errorf("password changed but salt not swapped in, %s is used until it is: %w", pending.loc.SaltPath(), err)
	}
	v.validator.RemoveInRoot(pending.loc.saltFile())

	v.log.Info("password changed", "tokens", len(tokens), "salt_rotated", true)
	return nil
}

// Compact compacts the database to reclaim unused space.
func (v *Vault) Compact() error {
	db, err := v.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Compact()
}

// GetVaultID returns the vault id used as the keyring account
func (v *Vault) GetVaultID() (string, error) {
	db, err := v.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetVaultID()
}

// GetOrCreateVaultID returns the vault id, creating one if needed
func (v *Vault) GetOrCreateVaultID() (string, error) {
	db, err := v.open()
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetOrCreateVaultID()
}
