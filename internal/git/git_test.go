package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatGitStatus(t *testing.T) {
	if got := FormatGitStatus(nil); got != "" {
		t.Errorf("Expected empty output for nil status, got %q", got)
	}
	if got := FormatGitStatus(&GitStatus{IsRepo: false}); got != "" {
		t.Errorf("Expected empty output outside a repo, got %q", got)
	}

	tests := []struct {
		name   string
		status GitStatus
		want   []string
	}{
		{
			"salt tracked",
			GitStatus{IsRepo: true, SaltFile: "salt.txt", SaltTracked: true, VaultFile: ".tokenseal", VaultTracked: true},
			[]string{"ok: salt.txt is tracked", "ok: .tokenseal is tracked"},
		},
		{
			"salt ignored",
			GitStatus{IsRepo: true, SaltFile: "salt.txt", SaltIgnored: true, VaultFile: ".tokenseal"},
			[]string{"warning: salt.txt is ignored", "info: .tokenseal not tracked"},
		},
		{
			"salt untracked",
			GitStatus{IsRepo: true, SaltFile: "salt.txt", VaultFile: ".tokenseal"},
			[]string{"git add salt.txt"},
		},
		{
			"env tracked",
			GitStatus{IsRepo: true, SaltFile: "salt.txt", SaltTracked: true, VaultFile: ".tokenseal", TrackedEnvFiles: []string{".env"}},
			[]string{"error: .env is tracked", "git rm --cached .env"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatGitStatus(&tt.status)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Output missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null", "GIT_CONFIG_NOSYSTEM=1")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
}

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name+"\n"), 0600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckGitIntegration(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()

	t.Run("outside a repo", func(t *testing.T) {
		dir := t.TempDir()
		// Keep git from walking up into an enclosing checkout
		t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

		status, err := CheckGitIntegration(ctx, dir, "salt.txt", ".tokenseal", nil)
		if err != nil {
			t.Fatalf("CheckGitIntegration: %v", err)
		}
		if status.IsRepo {
			t.Error("Expected IsRepo false outside a repository")
		}
	})

	t.Run("salt and env tracked", func(t *testing.T) {
		dir := t.TempDir()
		gitRun(t, dir, "init", "-q")
		writeFiles(t, dir, "salt.txt", ".tokenseal", ".env")
		gitRun(t, dir, "add", "salt.txt", ".env")

		status, err := CheckGitIntegration(ctx, dir, "salt.txt", ".tokenseal", []string{".env", ".env.local"})
		if err != nil {
			t.Fatalf("CheckGitIntegration: %v", err)
		}
		if !status.IsRepo {
			t.Fatal("Expected IsRepo true after git init")
		}
		if !status.SaltTracked {
			t.Error("Expected salt.txt to be tracked")
		}
		if status.SaltIgnored {
			t.Error("Expected salt.txt not to be ignored")
		}
		if status.VaultTracked {
			t.Error("Expected .tokenseal not to be tracked")
		}
		if len(status.TrackedEnvFiles) != 1 || status.TrackedEnvFiles[0] != ".env" {
			t.Errorf("Expected TrackedEnvFiles [.env], got %v", status.TrackedEnvFiles)
		}
	})

	t.Run("salt ignored", func(t *testing.T) {
		dir := t.TempDir()
		gitRun(t, dir, "init", "-q")
		writeFiles(t, dir, "salt.txt")
		if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("salt.txt\n"), 0600); err != nil {
			t.Fatal(err)
		}

		status, err := CheckGitIntegration(ctx, dir, "salt.txt", ".tokenseal", nil)
		if err != nil {
			t.Fatalf("CheckGitIntegration: %v", err)
		}
		if !status.SaltIgnored {
			t.Error("Expected salt.txt to be ignored")
		}
		if status.SaltTracked {
			t.Error("Expected salt.txt not to be tracked")
		}
		if !strings.Contains(FormatGitStatus(status), "warning: salt.txt is ignored") {
			t.Errorf("Expected ignore warning, got %q", FormatGitStatus(status))
		}
	})
}
