package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
)

// Salt shows the salt file state, or writes a new salt when save is set
func Salt(ctx context.Context, rt *Runtime, save, force bool) {
	loc := rt.Location()

	if !save {
		showSalt(loc)
		return
	}

	vault := rt.OpenVault()
	defer vault.Close()
	if vault.Exists() {
		fmt.Fprintf(os.Stderr, "Error: %s uses this salt\n", vault.Path())
		fmt.Fprintf(os.Stderr, "Use 'tokenseal passwd' to rotate the salt with the vault\n")
		os.Exit(1)
	}

	password, err := GetPasswordForNew()
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := ctx.Err(); err != nil {
		HandleError(err)
	}

	c, err := core.NewFreshSalt(password, loc, core.Options{PersistSaltImmediately: true, OverwriteSalt: force})
	if err != nil {
		HandleError(err)
	}
	c.Destroy()

	rt.Log.Info("salt written", "path", loc.SaltPath(), "overwrite", force)
	fmt.Printf("✓ Saved new salt to %s\n", loc.SaltPath())
}

func showSalt(loc core.Location) {
	fmt.Printf("Salt file: %s\n", loc.SaltPath())

	exists, err := core.SaltExists(loc)
	if err != nil {
		HandleError(err)
	}
	if !exists {
		fmt.Println("Status: missing")
		fmt.Println("Run 'tokenseal init' or 'tokenseal salt -save' to create one")
		return
	}

	if err := core.CheckSalt(loc); err != nil {
		fmt.Printf("Status: invalid (%s)\n", err)
		os.Exit(1)
	}
	fmt.Printf("Status: present (%d bytes)\n", crypto.SaltSize)
}
