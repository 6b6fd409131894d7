package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_tokenseal() {
    local cur prev words cword
    _init_completion || return

    local commands="init encrypt decrypt salt put get rm ls status diff passwd compact keyring help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        init)
            COMPREPLY=($(compgen -W "-dir -salt -reuse-salt -force" -- "$cur"))
            ;;
        salt)
            COMPREPLY=($(compgen -W "-dir -salt -save -force" -- "$cur"))
            ;;
        passwd)
            COMPREPLY=($(compgen -W "-dir -salt -rotate-salt" -- "$cur"))
            ;;
        get|rm)
            # Complete with token names from vault
            local names
            names=$(tokenseal ls 2>/dev/null | grep -E '^\s+\* ' | sed 's/^\s*\* //' | sed 's/ (.*//')
            COMPREPLY=($(compgen -W "$names" -- "$cur"))
            ;;
        diff)
            if [[ $cword -eq 2 ]]; then
                local names
                names=$(tokenseal ls 2>/dev/null | grep -E '^\s+\* ' | sed 's/^\s*\* //' | sed 's/ (.*//')
                COMPREPLY=($(compgen -W "$names" -- "$cur"))
            else
                _filedir
            fi
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _tokenseal tokenseal
`

const zshCompletion = `#compdef tokenseal

_tokenseal() {
    local -a commands
    commands=(
        'init:Create a vault and salt file'
        'encrypt:Encrypt text into a token'
        'decrypt:Decrypt a token'
        'salt:Show or regenerate the salt file'
        'put:Store a token in the vault'
        'get:Print a token from the vault'
        'rm:Remove tokens from the vault'
        'ls:Show vault status'
        'status:Show vault status'
        'diff:Compare a stored token with a local value'
        'passwd:Change vault password'
        'compact:Compact vault to reclaim disk space'
        'keyring:Manage password in OS keyring'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'tokenseal commands' commands
            ;;
        args)
            case "${words[2]}" in
                init)
                    _arguments \
                        '-reuse-salt[Keep the existing salt file]' \
                        '-force[Replace an existing salt file]'
                    ;;
                salt)
                    _arguments \
                        '-save[Generate and save a new salt]' \
                        '-force[Replace an existing salt file]'
                    ;;
                passwd)
                    _arguments '-rotate-salt[Also replace the salt file]'
                    ;;
                get|rm)
                    _arguments '*:token:_tokenseal_names'
                    ;;
                diff)
                    _arguments '1:token:_tokenseal_names' '2:file:_files'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                help)
                    _describe -t commands 'tokenseal commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_tokenseal_names() {
    local -a names
    names=(${(f)"$(tokenseal ls 2>/dev/null | grep -E '^\s+\* ' | sed 's/^\s*\* //' | sed 's/ (.*//')"})
    _describe -t names 'tokens' names
}

_tokenseal "$@"
`

const fishCompletion = `# tokenseal fish completions

set -l commands init encrypt decrypt salt put get rm ls status diff passwd compact keyring help completion

complete -c tokenseal -f

# Commands
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create a vault and salt file'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a encrypt -d 'Encrypt text into a token'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a decrypt -d 'Decrypt a token'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a salt -d 'Show or regenerate the salt'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a put -d 'Store a token'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a get -d 'Print a token'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove tokens'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a ls -d 'Show vault status'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show vault status'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a diff -d 'Compare token with local value'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change vault password'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact vault'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage password in OS keyring'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c tokenseal -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# init and salt flags
complete -c tokenseal -n "__fish_seen_subcommand_from init" -o reuse-salt -d 'Keep the existing salt file'
complete -c tokenseal -n "__fish_seen_subcommand_from init salt" -o force -d 'Replace an existing salt file'
complete -c tokenseal -n "__fish_seen_subcommand_from salt" -o save -d 'Generate and save a new salt'
complete -c tokenseal -n "__fish_seen_subcommand_from passwd" -o rotate-salt -d 'Also replace the salt file'

# token names
complete -c tokenseal -n "__fish_seen_subcommand_from get rm diff" -a "(tokenseal ls 2>/dev/null | string replace -rf '^\s+\* (\S+) .*' '\$1')"

# keyring subcommands
complete -c tokenseal -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# help completions
complete -c tokenseal -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c tokenseal -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
