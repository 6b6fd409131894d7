package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/navagetur/tokenseal/internal/config"
	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
	"github.com/navagetur/tokenseal/internal/keyring"
	"github.com/navagetur/tokenseal/internal/security"
)

// Runtime carries the settings and logger shared by every command
type Runtime struct {
	Config *config.Config
	Log    *slog.Logger
}

// Location returns the salt location configured for this run
func (r *Runtime) Location() core.Location {
	return core.Location{Dir: r.Config.Dir, SaltFile: r.Config.SaltFile}
}

// OpenVault opens the configured vault or exits
func (r *Runtime) OpenVault() *core.Vault {
	vault, err := core.NewVault(r.Location(), r.Config.VaultFile, r.Log)
	if err != nil {
		HandleError(err)
	}
	return vault
}

// PasswordSource indicates where a password came from
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

// GetPassword retrieves password from environment or prompts user
// The caller is responsible for calling crypto.ClearBytes on the returned password
func GetPassword(prompt string) ([]byte, error) {
	// Try environment variable first
	password := core.GetPasswordFromEnv()
	if password != nil {
		return password, nil
	}

	// Prompt user
	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, err
	}
	if len(password) == 0 {
		return nil, core.ErrEmptyPassword
	}

	return password, nil
}

// GetPasswordForNew retrieves a password that will protect a new salt.
// Checks environment variable first, then prompts with confirmation
func GetPasswordForNew() ([]byte, error) {
	password := core.GetPasswordFromEnv()
	if password != nil {
		return password, nil
	}
	return core.ReadPasswordConfirm()
}

// GetPasswordWithRetry tries the environment, then the keyring, then the
// terminal. A keyring entry that fails verify is reported as stale and the
// user is prompted instead.
func GetPasswordWithRetry(prompt, vaultID string, verify func([]byte) error) ([]byte, PasswordSource, error) {
	if password := core.GetPasswordFromEnv(); password != nil {
		if err := verify(password); err != nil {
			crypto.ClearBytes(password)
			return nil, SourceEnv, err
		}
		return password, SourceEnv, nil
	}

	if vaultID != "" {
		password, err := keyring.GetPassword(vaultID)
		if err == nil {
			verr := verify(password)
			if verr == nil {
				return password, SourceKeyring, nil
			}
			crypto.ClearBytes(password)
			if !errors.Is(verr, core.ErrWrongPassword) {
				return nil, SourceKeyring, verr
			}
			fmt.Fprintln(os.Stderr, "warning: password in keyring is out of date")
		}
	}

	password, err := GetPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	if err := verify(password); err != nil {
		crypto.ClearBytes(password)
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// OfferToSavePassword asks whether a typed password should go to the keyring
func OfferToSavePassword(vaultID string, password []byte) {
	if !core.IsTerminal() {
		return
	}

	fmt.Fprint(os.Stderr, "Save password to keyring? [y/N]: ")
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer != "y" && answer != "yes" {
		return
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Password saved to keyring")
}

// unlockVault resolves the vault password, offering to remember a typed one
func unlockVault(vault *core.Vault, prompt string) []byte {
	vaultID, _ := vault.GetVaultID()

	password, source, err := GetPasswordWithRetry(prompt, vaultID, vault.VerifyPassword)
	if err != nil {
		HandleError(err)
	}

	if source == SourcePrompt {
		if id, err := vault.GetOrCreateVaultID(); err == nil {
			OfferToSavePassword(id, password)
		}
	}
	return password
}

// readInput returns args[0] when given, otherwise all of stdin with one
// trailing newline removed.
func readInput(args []string, r io.Reader) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	s := string(data)
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}

// HandleError handles common errors consistently
func HandleError(err error) {
	switch {
	case errors.Is(err, core.ErrNotInitialized):
		fmt.Fprintf(os.Stderr, "Error: vault not initialized\n")
		fmt.Fprintf(os.Stderr, "Run 'tokenseal init' first\n")
	case errors.Is(err, core.ErrAlreadyExists):
		fmt.Fprintf(os.Stderr, "Error: vault already exists in this directory\n")
		fmt.Fprintf(os.Stderr, "Use 'tokenseal status' to see current state\n")
	case errors.Is(err, core.ErrWrongPassword):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, core.ErrSaltNotFound):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Tokens cannot be decrypted without the salt file; restore it from backup\n")
	case errors.Is(err, core.ErrSaltExists):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Replacing it makes existing tokens unreadable; pass -force to do so anyway\n")
	case errors.Is(err, core.ErrSaltFormat):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "The salt file must hold exactly %d bytes\n", crypto.SaltSize)
	case errors.Is(err, core.ErrAuthFailed):
		fmt.Fprintf(os.Stderr, "Error: token could not be decrypted (wrong password, wrong salt or tampered token)\n")
	case errors.Is(err, security.ErrPathEscapes), errors.Is(err, security.ErrAbsolutePath):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "File names must stay inside the storage directory\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	os.Exit(1)
}
