package cmd

import (
	"context"
	"fmt"
	"os"
)

// Compact compacts the vault database to reclaim unused space
func Compact(ctx context.Context, rt *Runtime) {
	vault := rt.OpenVault()
	defer vault.Close()

	if err := ctx.Err(); err != nil {
		HandleError(err)
	}

	// Get file size before
	info, err := os.Stat(vault.Path())
	if err != nil {
		HandleError(err)
	}
	sizeBefore := info.Size()

	if err := vault.Compact(); err != nil {
		HandleError(err)
	}

	// Get file size after
	info, err = os.Stat(vault.Path())
	if err != nil {
		HandleError(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}
