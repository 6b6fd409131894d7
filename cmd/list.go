package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/navagetur/tokenseal/internal/core"
	"github.com/navagetur/tokenseal/internal/git"
)

// Status shows the vault contents and salt state (no password required)
func Status(ctx context.Context, rt *Runtime) {
	vault := rt.OpenVault()
	defer vault.Close()

	if !vault.Exists() {
		fmt.Printf("No vault found at %s\n", vault.Path())
		fmt.Println("Run 'tokenseal init' to create one")
		showSaltLine(rt.Location())
		return
	}

	status, err := vault.Status(ctx)
	if err != nil {
		HandleError(err)
	}

	fmt.Printf("Vault: %s\n", vault.Path())
	fmt.Printf("  Tokens:     %d (%s)\n", len(status.Tokens), formatSize(int64(status.TotalSize)))
	fmt.Printf("  Encryption: %s, %s (%d iterations)\n", status.Algorithm, status.KDF, status.KDFIterations)
	fmt.Printf("  Created:    %s\n", formatTime(status.Created))
	fmt.Printf("  Modified:   %s\n", formatTime(status.Modified))

	switch {
	case !status.SaltPresent:
		fmt.Printf("  Salt:       %s (MISSING)\n", status.SaltPath)
	case !status.SaltValid:
		fmt.Printf("  Salt:       %s (INVALID)\n", status.SaltPath)
	default:
		fmt.Printf("  Salt:       %s\n", status.SaltPath)
	}

	fmt.Println()
	fmt.Println("Tokens:")
	if len(status.Tokens) == 0 {
		fmt.Println("  (none)")
	}
	for _, entry := range status.Tokens {
		fmt.Printf("  * %s (%s, updated %s)\n", entry.Name, formatSize(int64(entry.Size)), formatTime(entry.Updated))
	}

	fmt.Print(git.FormatGitStatus(status.GitStatus))
}

func showSaltLine(loc core.Location) {
	exists, err := core.SaltExists(loc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %s\n", err)
		return
	}
	if exists {
		fmt.Printf("Salt file present: %s\n", loc.SaltPath())
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Local().Format(time.RFC3339)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}
