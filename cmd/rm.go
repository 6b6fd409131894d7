package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/crypto"
)

// Remove removes tokens from the vault
func Remove(ctx context.Context, rt *Runtime, patterns []string) {
	if len(patterns) == 0 {
		fmt.Fprintf(os.Stderr, "Error: rm requires at least one token name\n")
		fmt.Fprintf(os.Stderr, "Usage: tokenseal rm <name> [name...]\n")
		os.Exit(1)
	}

	vault := rt.OpenVault()
	defer vault.Close()

	password := unlockVault(vault, "Enter password: ")
	defer crypto.ClearBytes(password)

	removed, err := vault.Remove(ctx, patterns, password)
	for _, name := range removed {
		fmt.Printf("removed: %s\n", name)
	}
	if err != nil {
		HandleError(err)
	}

	// Compact database to reclaim space
	if err := vault.Compact(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: compaction failed: %s\n", err)
	}
}
