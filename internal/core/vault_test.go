package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestVault(t *testing.T) (*Vault, []byte) {
	t.Helper()
	dir := t.TempDir()
	vault, err := NewVault(Location{Dir: dir}, "", nil)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	t.Cleanup(func() { vault.Close() })

	password := []byte("test123")
	if err := vault.Init(context.Background(), password, InitOptions{}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return vault, password
}

func TestVaultInit(t *testing.T) {
	vault, password := newTestVault(t)

	// Init again should fail
	if err := vault.Init(context.Background(), password, InitOptions{}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	if _, err := os.Stat(vault.Path()); err != nil {
		t.Errorf("Vault file should exist: %v", err)
	}

	info, err := os.Stat(vault.Location().SaltPath())
	if err != nil {
		t.Fatalf("Salt file should exist: %v", err)
	}
	if info.Size() != 16 {
		t.Errorf("Salt file size mismatch: got %d, want 16", info.Size())
	}
}

func TestVaultInitRefusesForeignSalt(t *testing.T) {
	dir := t.TempDir()
	loc := Location{Dir: dir}
	if err := os.WriteFile(loc.SaltPath(), []byte("0123456789abcdef"), 0600); err != nil {
		t.Fatalf("Failed to write salt: %v", err)
	}

	vault, err := NewVault(loc, "", nil)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	defer vault.Close()

	if err := vault.Init(context.Background(), []byte("pw"), InitOptions{}); !errors.Is(err, ErrSaltExists) {
		t.Fatalf("Expected ErrSaltExists, got %v", err)
	}
	if vault.Exists() {
		t.Error("Vault file should not be created when init fails")
	}
}

func TestVaultInitReuseSalt(t *testing.T) {
	dir := t.TempDir()
	loc := Location{Dir: dir}
	password := []byte("test123")

	// A token issued by a standalone cipher before the vault existed
	c, err := NewFreshSalt(password, loc, Options{PersistSaltImmediately: true})
	if err != nil {
		t.Fatalf("NewFreshSalt failed: %v", err)
	}
	token, err := c.Encrypt("issued earlier")
	c.Destroy()
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	vault, err := NewVault(loc, "", nil)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	defer vault.Close()

	if err := vault.Init(context.Background(), password, InitOptions{ReuseSalt: true}); err != nil {
		t.Fatalf("Init with reused salt failed: %v", err)
	}

	reloaded, err := NewExistingSalt(password, loc)
	if err != nil {
		t.Fatalf("NewExistingSalt failed: %v", err)
	}
	defer reloaded.Destroy()

	got, err := reloaded.Decrypt(token)
	if err != nil {
		t.Fatalf("Token issued before init should still decrypt: %v", err)
	}
	if got != "issued earlier" {
		t.Errorf("Decrypted mismatch: got %q", got)
	}
}

func TestVaultPutGet(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "github", "ghp_first", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vault.Put(ctx, "github", "ghp_second", password); err != nil {
		t.Fatalf("Put (replace) failed: %v", err)
	}

	value, err := vault.Get(ctx, "github", password)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "ghp_second" {
		t.Errorf("Value mismatch: got %q, want %q", value, "ghp_second")
	}

	if _, err := vault.Get(ctx, "missing", password); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
}

func TestVaultWrongPassword(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "api", "secret", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, err := vault.Get(ctx, "api", []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
	if err := vault.Put(ctx, "api", "overwrite", []byte("wrong")); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
	if _, err := vault.Get(ctx, "api", nil); !errors.Is(err, ErrPasswordRequired) {
		t.Errorf("Expected ErrPasswordRequired, got %v", err)
	}
	if err := vault.VerifyPassword(password); err != nil {
		t.Errorf("VerifyPassword failed: %v", err)
	}
}

func TestVaultInvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"github", true},
		{"aws/prod/key", true},
		{"", false},
		{"has space", false},
		{"tab\there", false},
		{"bad\xff", false},
		{strings.Repeat("a", MaxNameLength+1), false},
	}

	for _, tt := range tests {
		err := ValidateName(tt.name)
		if tt.valid && err != nil {
			t.Errorf("ValidateName(%q) unexpected error: %v", tt.name, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) expected ErrInvalidName, got %v", tt.name, err)
		}
	}
}

func TestVaultRemove(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	for _, name := range []string{"aws_key", "aws_secret", "github"} {
		if err := vault.Put(ctx, name, "v-"+name, password); err != nil {
			t.Fatalf("Put %s failed: %v", name, err)
		}
	}

	removed, err := vault.Remove(ctx, []string{"aws_*"}, password)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if strings.Join(removed, ",") != "aws_key,aws_secret" {
		t.Errorf("Removed mismatch: got %v", removed)
	}

	entries, err := vault.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "github" {
		t.Errorf("Expected only github to remain, got %v", entries)
	}

	if _, err := vault.Remove(ctx, []string{"nothing*"}, password); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("Expected ErrTokenNotFound, got %v", err)
	}
}

func TestVaultListAndStatusWithoutPassword(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "b", "two", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vault.Put(ctx, "a", "one", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	entries, err := vault.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a" || entries[1].Name != "b" {
		t.Fatalf("List should be sorted by name, got %v", entries)
	}

	status, err := vault.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if len(status.Tokens) != 2 {
		t.Errorf("Expected 2 tokens, got %d", len(status.Tokens))
	}
	if status.TotalSize != entries[0].Size+entries[1].Size {
		t.Errorf("TotalSize mismatch: got %d", status.TotalSize)
	}
	if !status.SaltPresent || !status.SaltValid {
		t.Errorf("Salt should be present and valid: %+v", status)
	}
	if status.KDFIterations != 390000 {
		t.Errorf("KDFIterations mismatch: got %d", status.KDFIterations)
	}
	if status.Created.IsZero() {
		t.Error("Created should be set")
	}
}

func TestVaultNotInitialized(t *testing.T) {
	vault, err := NewVault(Location{Dir: t.TempDir()}, "", nil)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	defer vault.Close()

	if _, err := vault.List(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	if _, err := vault.Get(context.Background(), "x", []byte("pw")); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestVaultRejectsEscapingFiles(t *testing.T) {
	dir := t.TempDir()

	if _, err := NewVault(Location{Dir: dir}, "../vault", nil); err == nil {
		t.Error("Expected error for escaping vault file")
	}
	if _, err := NewVault(Location{Dir: dir, SaltFile: "../salt.txt"}, "", nil); err == nil {
		t.Error("Expected error for escaping salt file")
	}
}

func TestVaultDiff(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "config", "line1\nline2\n", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	diff, err := vault.Diff(ctx, "config", "line1\nline2\n", password)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if diff != "" {
		t.Errorf("Expected empty diff, got %q", diff)
	}

	diff, err = vault.Diff(ctx, "config", "line1\nchanged\n", password)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	for _, want := range []string{"--- vault/config", "+++ local/config", "-line2", "+changed"} {
		if !strings.Contains(diff, want) {
			t.Errorf("Diff missing %q:\n%s", want, diff)
		}
	}
}

func TestVaultChangePasswordRotateSalt(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "one", "first", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vault.Put(ctx, "two", "second", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	oldSalt, err := os.ReadFile(vault.Location().SaltPath())
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}

	newPassword := []byte("newpass456")
	if err := vault.ChangePassword(ctx, password, newPassword, PasswordOptions{RotateSalt: true}); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	newSalt, err := os.ReadFile(vault.Location().SaltPath())
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}
	if string(oldSalt) == string(newSalt) {
		t.Error("Salt should be replaced on password change")
	}

	pending := filepath.Join(vault.Location().Dir, DefaultSaltFile+pendingSaltSuffix)
	if _, err := os.Stat(pending); !os.IsNotExist(err) {
		t.Errorf("Pending salt file should be removed, stat err: %v", err)
	}

	if _, err := vault.Get(ctx, "one", password); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Old password should be rejected, got %v", err)
	}

	value, err := vault.Get(ctx, "two", newPassword)
	if err != nil {
		t.Fatalf("Get with new password failed: %v", err)
	}
	if value != "second" {
		t.Errorf("Value mismatch: got %q", value)
	}
}

func TestVaultChangePasswordKeepsSharedSalt(t *testing.T) {
	dir := t.TempDir()
	loc := Location{Dir: dir}
	password := []byte("test123")
	ctx := context.Background()

	// A token issued outside the vault under the same salt file
	c, mode, err := Open(password, loc)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if mode != FreshSalt {
		t.Fatalf("Expected a fresh salt, got %v", mode)
	}
	token, err := c.Encrypt("issued outside the vault")
	c.Destroy()
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	vault, err := NewVault(loc, "", nil)
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	defer vault.Close()

	if err := vault.Init(ctx, password, InitOptions{ReuseSalt: true}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := vault.Put(ctx, "api", "secret", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	saltBefore, err := os.ReadFile(loc.SaltPath())
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}

	newPassword := []byte("newpass456")
	if err := vault.ChangePassword(ctx, password, newPassword, PasswordOptions{}); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	saltAfter, err := os.ReadFile(loc.SaltPath())
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}
	if string(saltBefore) != string(saltAfter) {
		t.Fatal("Salt file should be kept without RotateSalt")
	}

	// The earlier token still opens with the password it was made with
	old, err := NewExistingSalt(password, loc)
	if err != nil {
		t.Fatalf("NewExistingSalt failed: %v", err)
	}
	defer old.Destroy()
	got, err := old.Decrypt(token)
	if err != nil {
		t.Fatalf("Token sharing the salt should still decrypt: %v", err)
	}
	if got != "issued outside the vault" {
		t.Errorf("Decrypted mismatch: got %q", got)
	}

	value, err := vault.Get(ctx, "api", newPassword)
	if err != nil {
		t.Fatalf("Get with new password failed: %v", err)
	}
	if value != "secret" {
		t.Errorf("Value mismatch: got %q", value)
	}
	if _, err := vault.Get(ctx, "api", password); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Old password should be rejected by the vault, got %v", err)
	}
}

func TestVaultRecoversInterruptedSaltRotation(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if err := vault.Put(ctx, "api", "secret", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// A directory at the temp name makes the final salt write fail
	dir := vault.Location().Dir
	blocker := filepath.Join(dir, DefaultSaltFile+".tmp")
	if err := os.Mkdir(blocker, 0700); err != nil {
		t.Fatalf("Failed to create blocker: %v", err)
	}

	newPassword := []byte("newpass456")
	err := vault.ChangePassword(ctx, password, newPassword, PasswordOptions{RotateSalt: true})
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("Expected the salt swap to fail with a StorageError, got %v", err)
	}

	pendingPath := filepath.Join(dir, DefaultSaltFile+pendingSaltSuffix)
	pendingSalt, err := os.ReadFile(pendingPath)
	if err != nil {
		t.Fatalf("Pending salt should be kept: %v", err)
	}

	// Still blocked: the pending salt is used without being promoted
	value, err := vault.Get(ctx, "api", newPassword)
	if err != nil {
		t.Fatalf("Get with new password failed: %v", err)
	}
	if value != "secret" {
		t.Errorf("Value mismatch: got %q", value)
	}
	if _, err := os.Stat(pendingPath); err != nil {
		t.Errorf("Pending salt should survive a failed promotion: %v", err)
	}

	if err := os.Remove(blocker); err != nil {
		t.Fatalf("Failed to remove blocker: %v", err)
	}

	value, err = vault.Get(ctx, "api", newPassword)
	if err != nil || value != "secret" {
		t.Fatalf("Get after unblocking failed: %q, %v", value, err)
	}

	salt, err := os.ReadFile(vault.Location().SaltPath())
	if err != nil {
		t.Fatalf("Failed to read salt: %v", err)
	}
	if string(salt) != string(pendingSalt) {
		t.Error("Pending salt should be promoted to the salt file")
	}
	if _, err := os.Stat(pendingPath); !os.IsNotExist(err) {
		t.Errorf("Pending salt should be removed after promotion, stat err: %v", err)
	}

	if _, err := vault.Get(ctx, "api", password); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Old password should be rejected, got %v", err)
	}
}

func TestVaultCompactAndID(t *testing.T) {
	vault, password := newTestVault(t)
	ctx := context.Background()

	if _, err := vault.GetVaultID(); err == nil {
		t.Error("Expected error before a vault id is created")
	}

	id, err := vault.GetOrCreateVaultID()
	if err != nil {
		t.Fatalf("GetOrCreateVaultID failed: %v", err)
	}
	again, err := vault.GetVaultID()
	if err != nil || again != id {
		t.Errorf("Vault id should be stable: %q vs %q (%v)", id, again, err)
	}

	if err := vault.Put(ctx, "kept", "value", password); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := vault.Compact(); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}

	value, err := vault.Get(ctx, "kept", password)
	if err != nil || value != "value" {
		t.Errorf("Token should survive compaction: %q, %v", value, err)
	}
}

func TestVaultCanceledContext(t *testing.T) {
	vault, password := newTestVault(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := vault.Put(ctx, "x", "y", password); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
