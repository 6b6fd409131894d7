package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/crypto"
)

// Encrypt prints a token for text. The salt file is created on first use.
func Encrypt(ctx context.Context, rt *Runtime, args []string) {
	text, err := readInput(args, os.Stdin)
	if err != nil {
		HandleError(err)
	}

	loc := rt.Location()
	exists, err := core.SaltExists(loc)
	if err != nil {
		HandleError(err)
	}

	var password []byte
	if exists {
		password, err = GetPassword("Enter password: ")
	} else {
		password, err = GetPasswordForNew()
	}
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := ctx.Err(); err != nil {
		HandleError(err)
	}

	c, mode, err := core.Open(password, loc)
	if err != nil {
		HandleError(err)
	}
	defer c.Destroy()

	if mode == core.FreshSalt {
		fmt.Fprintf(os.Stderr, "Generated new salt: %s\n", loc.SaltPath())
	}
	rt.Log.Debug("encrypting", "salt", loc.SaltPath(), "mode", mode)

	token, err := c.Encrypt(text)
	if err != nil {
		HandleError(err)
	}
	fmt.Println(string(token))
}

// Decrypt prints the text held by a token
func Decrypt(ctx context.Context, rt *Runtime, args []string) {
	input, err := readInput(args, os.Stdin)
	if err != nil {
		HandleError(err)
	}
	token := strings.TrimSpace(input)

	password, err := GetPassword("Enter password: ")
	if err != nil {
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if err := ctx.Err(); err != nil {
		HandleError(err)
	}

	c, err := core.NewExistingSalt(password, rt.Location())
	if err != nil {
		HandleError(err)
	}
	defer c.Destroy()

	plaintext, err := c.Decrypt([]byte(token))
	if err != nil {
		HandleError(err)
	}
	fmt.Println(plaintext)
}
