package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
)

// Put encrypts a value and stores it in the vault under name
func Put(ctx context.Context, rt *Runtime, args []string) {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Error: put requires a token name\n")
		fmt.Fprintf(os.Stderr, "Usage: tokenseal put <name> [value]\n")
		os.Exit(1)
	}
	name := args[0]
	if err := core.ValidateName(name); err != nil {
		HandleError(err)
	}

	vault := rt.OpenVault()
	defer vault.Close()

	password := unlockVault(vault, "Enter password: ")
	defer crypto.ClearBytes(password)

	value, err := readValue(args[1:])
	if err != nil {
		HandleError(err)
	}

	if err := vault.Put(ctx, name, value, password); err != nil {
		HandleError(err)
	}
	fmt.Printf("✓ Stored %s\n", name)
}

// readValue takes the value from args, a hidden prompt on a terminal, or stdin
func readValue(args []string) (string, error) {
	if len(args) == 0 && core.IsTerminal() {
		value, err := core.ReadPassword("Enter value: ")
		if err != nil {
			return "", err
		}
		defer crypto.ClearBytes(value)
		return string(value), nil
	}
	return readInput(args, os.Stdin)
}

// Get decrypts a token from the vault and prints it
func Get(ctx context.Context, rt *Runtime, args []string) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Error: get requires exactly one token name\n")
		fmt.Fprintf(os.Stderr, "Usage: tokenseal get <name>\n")
		os.Exit(1)
	}

	vault := rt.OpenVault()
	defer vault.Close()

	password := unlockVault(vault, "Enter password: ")
	defer crypto.ClearBytes(password)

	value, err := vault.Get(ctx, args[0], password)
	if err != nil {
		HandleError(err)
	}
	fmt.Println(value)
}
