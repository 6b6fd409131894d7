package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
)

// Init creates a new vault and salt file
func Init(ctx context.Context, rt *Runtime, reuseSalt, force bool) {
	if reuseSalt && force {
		fmt.Fprintf(os.Stderr, "Error: -reuse-salt and -force are mutually exclusive\n")
		os.Exit(1)
	}

	vault := rt.OpenVault()
	defer vault.Close()

	if vault.Exists() {
		HandleError(core.ErrAlreadyExists)
	}

	// A reused salt must be opened with the password it was created for
	var (
		password []byte
		err      error
	)
	if reuseSalt {
		password, err = GetPassword("Enter password: ")
	} else {
		password, err = GetPasswordForNew()
	}
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	opts := core.InitOptions{ReuseSalt: reuseSalt, OverwriteSalt: force}
	if err := vault.Init(ctx, password, opts); err != nil {
		HandleError(err)
	}

	fmt.Printf("✓ Initialized %s\n", vault.Path())
	fmt.Printf("  salt: %s\n", rt.Location().SaltPath())
	fmt.Println("Keep the salt file: without it no token can be decrypted.")
}
