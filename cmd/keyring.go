package cmd

import (
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
	"github.com/navagetur/tokenseal/internal/keyring"
)

// KeyringSave saves the password to the OS keyring
func KeyringSave(rt *Runtime) {
	vault := rt.OpenVault()
	defer vault.Close()

	// Prompt for password
	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	// Verify password is correct
	if err := vault.VerifyPassword(password); err != nil {
		HandleError(err)
	}

	// Get vault ID (create if not exists)
	vaultID, err := vault.GetOrCreateVaultID()
	if err != nil {
		HandleError(err)
	}

	if err := keyring.SavePassword(vaultID, password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the password from the OS keyring
func KeyringDelete(rt *Runtime) {
	vault := rt.OpenVault()
	defer vault.Close()

	vaultID, err := vault.GetVaultID()
	if err != nil || !keyring.HasPassword(vaultID) {
		fmt.Println("No password stored in keyring")
		return
	}

	if err := keyring.DeletePassword(vaultID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete from keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(rt *Runtime) {
	vault := rt.OpenVault()
	defer vault.Close()

	vaultID, err := vault.GetVaultID()
	if err != nil {
		fmt.Println("Password: not stored")
		return
	}

	if keyring.HasPassword(vaultID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}
