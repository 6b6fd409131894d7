package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
	"github.com/navagetur/tokenseal/internal/keyring"
)

// Passwd changes the vault password, rotating the salt when asked to
func Passwd(ctx context.Context, rt *Runtime, rotateSalt bool) {
	vault := rt.OpenVault()
	defer vault.Close()

	// Get vault ID for keyring lookup
	vaultID, _ := vault.GetVaultID()

	// Get current password with retry on stale keyring
	currentPassword, _, err := GetPasswordWithRetry("Enter current password: ", vaultID, vault.VerifyPassword)
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(currentPassword)

	// The new password is always typed, never taken from the environment
	newPassword, err := core.ReadPasswordConfirm()
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(newPassword)

	if rotateSalt {
		fmt.Fprintln(os.Stderr, "warning: rotating the salt; tokens from 'tokenseal encrypt' made with the old salt will no longer decrypt")
	}

	opts := core.PasswordOptions{RotateSalt: rotateSalt}
	if err := vault.ChangePassword(ctx, currentPassword, newPassword, opts); err != nil {
		HandleError(err)
	}

	// Update keyring if it held the old password
	if vaultID != "" && keyring.HasPassword(vaultID) {
		if err := keyring.SavePassword(vaultID, newPassword); err == nil {
			fmt.Println("Keyring updated with new password")
		} else {
			fmt.Fprintf(os.Stderr, "warning: failed to update keyring: %s\n", err)
		}
	}

	// Compact database after rewriting all data
	if err := vault.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}

	fmt.Println("password changed successfully")
	if rotateSalt {
		fmt.Printf("new salt written to %s, back it up\n", rt.Location().SaltPath())
	}
}
