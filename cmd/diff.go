package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/crypto"
)

// Diff compares a stored token with a local value read from a file or stdin
func Diff(ctx context.Context, rt *Runtime, args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Error: diff requires a token name\n")
		fmt.Fprintf(os.Stderr, "Usage: tokenseal diff <name> [file]\n")
		os.Exit(1)
	}
	name := args[0]

	var candidate string
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			HandleError(fmt.Errorf("failed to read %s: %w", args[1], err))
		}
		candidate = string(data)
	} else {
		var err error
		if candidate, err = readInput(nil, os.Stdin); err != nil {
			HandleError(err)
		}
	}

	vault := rt.OpenVault()
	defer vault.Close()

	password := unlockVault(vault, "Enter password: ")
	defer crypto.ClearBytes(password)

	diff, err := vault.Diff(ctx, name, candidate, password)
	if err != nil {
		HandleError(err)
	}

	if diff == "" {
		fmt.Printf("%s: unchanged\n", name)
		return
	}
	fmt.Print(diff)
	os.Exit(1)
}
