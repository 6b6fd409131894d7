package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/navagetur/tokenseal/cmd"
	"github.com/navagetur/tokenseal/internal/config"
	"github.com/navagetur/tokenseal/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Help and completion work even with a broken environment
	switch os.Args[1] {
	case "completion":
		runCompletion(os.Args[2:])
		return
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
		return
	}

	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	run(ctx, cfg, os.Args[1], os.Args[2:])
}

// commands maps the subcommands that need configuration to their handlers
var commands = map[string]func(ctx context.Context, cfg *config.Config, name string, args []string){
	"init":    runInit,
	"encrypt": runEncrypt,
	"decrypt": runDecrypt,
	"salt":    runSalt,
	"put":     runPut,
	"get":     runGet,
	"rm":      runRm,
	"ls":      runStatus,
	"status":  runStatus,
	"diff":    runDiff,
	"passwd":  runPasswd,
	"compact": runCompact,
	"keyring": runKeyring,
}

func newFlagSet(name string, cfg *config.Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&cfg.Dir, "dir", cfg.Dir, "Storage directory for the salt and vault files")
	fs.StringVar(&cfg.SaltFile, "salt", cfg.SaltFile, "Salt file name inside the storage directory")
	return fs
}

// parse parses args and builds the runtime for a command
func parse(fs *flag.FlagSet, cfg *config.Config, args []string) *cmd.Runtime {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, os.Stderr)
	logger.Debug("configuration", "dir", cfg.Dir, "salt", cfg.SaltFile, "vault", cfg.VaultFile)
	return &cmd.Runtime{Config: cfg, Log: logger}
}

func runInit(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	reuseSalt := fs.Bool("reuse-salt", false, "Keep an existing salt file")
	force := fs.Bool("force", false, "Replace an existing salt file")
	rt := parse(fs, cfg, args)

	cmd.Init(ctx, rt, *reuseSalt, *force)
}

func runEncrypt(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Encrypt(ctx, rt, fs.Args())
}

func runDecrypt(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Decrypt(ctx, rt, fs.Args())
}

func runSalt(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	save := fs.Bool("save", false, "Generate and save a new salt")
	force := fs.Bool("force", false, "Replace an existing salt file")
	rt := parse(fs, cfg, args)

	if *force && !*save {
		fmt.Fprintln(os.Stderr, "Error: -force only applies with -save")
		os.Exit(1)
	}
	cmd.Salt(ctx, rt, *save, *force)
}

func runPut(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Put(ctx, rt, fs.Args())
}

func runGet(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Get(ctx, rt, fs.Args())
}

func runRm(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Remove(ctx, rt, fs.Args())
}

func runStatus(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Status(ctx, rt)
}

func runDiff(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Diff(ctx, rt, fs.Args())
}

func runPasswd(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rotateSalt := fs.Bool("rotate-salt", false, "Replace the salt file with a fresh salt")
	rt := parse(fs, cfg, args)

	cmd.Passwd(ctx, rt, *rotateSalt)
}

func runCompact(ctx context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	cmd.Compact(ctx, rt)
}

func runKeyring(_ context.Context, cfg *config.Config, name string, args []string) {
	fs := newFlagSet(name, cfg)
	rt := parse(fs, cfg, args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tokenseal keyring <save|delete|status>")
		os.Exit(1)
	}

	switch fs.Arg(0) {
	case "save":
		cmd.KeyringSave(rt)
	case "delete":
		cmd.KeyringDelete(rt)
	case "status":
		cmd.KeyringStatus(rt)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", fs.Arg(0))
		os.Exit(1)
	}
}

func runCompletion(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tokenseal completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("tokenseal - Password-based token encryption")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tokenseal <command> [flags] [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create a vault and salt file")
	fmt.Println("  encrypt     Encrypt text into a token")
	fmt.Println("  decrypt     Decrypt a token")
	fmt.Println("  salt        Show or regenerate the salt file")
	fmt.Println("  put         Encrypt a value and store it in the vault")
	fmt.Println("  get         Decrypt and print a stored token")
	fmt.Println("  rm          Remove tokens from the vault")
	fmt.Println("  ls, status  Show vault status")
	fmt.Println("  diff        Compare a stored token with a local value")
	fmt.Println("  passwd      Change vault password")
	fmt.Println("  compact     Compact vault to reclaim disk space")
	fmt.Println("  keyring     Manage password in OS keyring")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Flags accepted by every command:")
	fmt.Println("  -dir <path>   Storage directory (default $TOKENSEAL_DIR or .)")
	fmt.Println("  -salt <name>  Salt file name (default $TOKENSEAL_SALT_FILE or salt.txt)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tokenseal encrypt 'hello world'    # Print a token")
	fmt.Println("  tokenseal decrypt <token>          # Print the text back")
	fmt.Println("  tokenseal init                     # Create new vault")
	fmt.Println("  tokenseal put github               # Store a token, value prompted")
	fmt.Println()
	fmt.Println("Use 'tokenseal help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("tokenseal init [-reuse-salt|-force]")
		fmt.Println()
		fmt.Println("Creates a vault file (.tokenseal) and a salt file (salt.txt) in the")
		fmt.Println("storage directory. The password is not stored anywhere.")
		fmt.Println("The salt file is required to decrypt anything: back it up.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -reuse-salt   Keep an existing salt file so earlier tokens still decrypt")
		fmt.Println("  -force        Replace an existing salt file")
	case "encrypt":
		fmt.Println("tokenseal encrypt [text]")
		fmt.Println()
		fmt.Println("Encrypts text (or stdin) and prints a URL-safe token.")
		fmt.Println("Creates the salt file on first use. Each call gives a different token.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  tokenseal encrypt 'hello world'")
		fmt.Println("  echo -n secret | tokenseal encrypt")
	case "decrypt":
		fmt.Println("tokenseal decrypt [token]")
		fmt.Println()
		fmt.Println("Decrypts a token (or stdin) produced by 'tokenseal encrypt'.")
		fmt.Println("Fails if the token was altered or the password or salt differ.")
	case "salt":
		fmt.Println("tokenseal salt [-save [-force]]")
		fmt.Println()
		fmt.Println("Shows whether the salt file exists and is valid.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -save    Generate and save a new salt")
		fmt.Println("  -force   Replace an existing salt (old tokens become unreadable)")
	case "put":
		fmt.Println("tokenseal put <name> [value]")
		fmt.Println()
		fmt.Println("Encrypts a value and stores it in the vault under name.")
		fmt.Println("Without a value argument the value is prompted for, or read from stdin.")
	case "get":
		fmt.Println("tokenseal get <name>")
		fmt.Println()
		fmt.Println("Decrypts a stored token and prints it.")
	case "rm":
		fmt.Println("tokenseal rm <name> [name...]")
		fmt.Println()
		fmt.Println("Removes tokens from the vault.")
		fmt.Println("Supports glob patterns for multiple tokens.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  tokenseal rm github")
		fmt.Println("  tokenseal rm \"aws_*\"")
	case "ls", "status":
		fmt.Println("tokenseal status")
		fmt.Println()
		fmt.Println("Shows vault status including:")
		fmt.Println("  - Token count and total size")
		fmt.Println("  - Encryption details")
		fmt.Println("  - Salt file state")
		fmt.Println("  - Git tracking of the salt and vault files")
		fmt.Println()
		fmt.Println("Does not require a password. 'ls' is an alias.")
	case "diff":
		fmt.Println("tokenseal diff <name> [file]")
		fmt.Println()
		fmt.Println("Compares a stored token with the contents of file (or stdin).")
		fmt.Println("Exits with status 1 when they differ.")
	case "passwd":
		fmt.Println("tokenseal passwd [-rotate-salt]")
		fmt.Println()
		fmt.Println("Changes the vault password and re-encrypts all tokens.")
		fmt.Println("The salt file is kept, so tokens printed by 'tokenseal encrypt'")
		fmt.Println("still decrypt with the password they were made with.")
		fmt.Println()
		fmt.Println("Flags:")
		fmt.Println("  -rotate-salt   Also replace the salt (earlier encrypt tokens become unreadable)")
	case "compact":
		fmt.Println("tokenseal compact")
		fmt.Println()
		fmt.Println("Compacts the vault database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'rm' and 'passwd' commands.")
		fmt.Println()
		fmt.Println("Does not require a password.")
	case "keyring":
		fmt.Println("tokenseal keyring <save|delete|status>")
		fmt.Println()
		fmt.Println("Stores the vault password in the OS keyring so commands")
		fmt.Println("do not prompt. A stale entry is detected and re-prompted.")
	case "completion":
		fmt.Println("tokenseal completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(tokenseal completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(tokenseal completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  tokenseal completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
