package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// GitStatus contains git integration status information
type GitStatus struct {
	IsRepo          bool
	SaltFile        string
	SaltTracked     bool // Salt is versioned, so it survives a lost checkout
	SaltIgnored     bool
	VaultFile       string
	VaultTracked    bool
	TrackedEnvFiles []string // .env files tracked by git (may hold TOKENSEAL_PASSWORD)
}

// IsGitRepo checks if the working directory is inside a git repository
func IsGitRepo(ctx context.Context, workDir string) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = workDir
	return cmd.Run() == nil
}

// IsTracked checks if a file is tracked by git
func IsTracked(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--", path)
	cmd.Dir = workDir
	output, err := cmd.Output()
	if err != nil {
		return false
	}

	return len(strings.TrimSpace(string(output))) > 0
}

// IsIgnored checks if a file is ignored by git (handles all .gitignore files)
func IsIgnored(ctx context.Context, workDir, path string) bool {
	cmd := exec.CommandContext(ctx, "git", "check-ignore", "-q", "--", path)
	cmd.Dir = workDir

	// git check-ignore returns exit code 0 if file is ignored
	return cmd.Run() == nil
}

// CheckGitIntegration checks how the salt file, the vault file and any
// .env files relate to the git repository containing workDir.
func CheckGitIntegration(ctx context.Context, workDir, saltFile, vaultFile string, envFiles []string) (*GitStatus, error) {
	status := &GitStatus{SaltFile: saltFile, VaultFile: vaultFile}

	if !IsGitRepo(ctx, workDir) {
		return status, nil
	}
	status.IsRepo = true

	status.SaltTracked = IsTracked(ctx, workDir, saltFile)
	status.SaltIgnored = IsIgnored(ctx, workDir, saltFile)
	status.VaultTracked = IsTracked(ctx, workDir, vaultFile)

	for _, file := range envFiles {
		if IsTracked(ctx, workDir, file) {
			status.TrackedEnvFiles = append(status.TrackedEnvFiles, file)
		}
	}

	return status, ctx.Err()
}

// FormatGitStatus formats git status for display
func FormatGitStatus(status *GitStatus) string {
	if status == nil || !status.IsRepo {
		return ""
	}

	var result strings.Builder
	result.WriteString("\nGit Integration:\n")

	switch {
	case status.SaltTracked:
		result.WriteString(fmt.Sprintf("   ok: %s is tracked by git\n", status.SaltFile))
	case status.SaltIgnored:
		result.WriteString(fmt.Sprintf("   warning: %s is ignored by git, back it up separately\n", status.SaltFile))
	default:
		result.WriteString(fmt.Sprintf("   warning: %s not tracked (run: git add %s)\n", status.SaltFile, status.SaltFile))
	}

	if status.VaultTracked {
		result.WriteString(fmt.Sprintf("   ok: %s is tracked by git\n", status.VaultFile))
	} else {
		result.WriteString(fmt.Sprintf("   info: %s not tracked by git\n", status.VaultFile))
	}

	for _, file := range status.TrackedEnvFiles {
		result.WriteString(fmt.Sprintf("   error: %s is tracked by git and may contain a password (run: git rm --cached %s)\n", file, file))
	}

	return result.String()
}
