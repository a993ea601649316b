package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

// completionShell describes how to generate and install completions for one
// shell. installPath is nil when automatic install is unsupported.
type completionShell struct {
	generate    func(w io.Writer) error
	loadHint    string
	installPath func(home string) string
	installNote string
}

var completionShells = map[string]completionShell{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		loadHint: `eval "$(tasker completion bash)"`,
		installPath: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "tasker")
		},
		installNote: "Restart your shell to pick up the completions.",
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		loadHint: `eval "$(tasker completion zsh)"`,
		installPath: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_tasker")
		},
		installNote: "Ensure the directory is in your fpath, then run: autoload -Uz compinit && compinit",
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		loadHint: "tasker completion fish | source",
		installPath: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "tasker.fish")
		},
		installNote: "Completions are available in new fish sessions.",
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		loadHint: "tasker completion powershell | Out-String | Invoke-Expression",
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for tasker",
	Long: `Set up shell tab-completions for tasker commands, flags, task ids and
statuses.

Supported shells: bash, zsh, fish, powershell

Quick install (writes the script to your user completion directory):

  tasker completion bash --install
  tasker completion zsh --install
  tasker completion fish --install

Or print the completion script to stdout:

  tasker completion bash`,
	ValidArgs:   []string{"bash", "zsh", "fish", "powershell"},
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{skipSetup: "true"},
	RunE:        runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your user completion directory")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell, ok := completionShells[args[0]]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
	}

	if !completionInstall {
		// Hints go to stderr so the script can be piped or eval'd.
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# To load completions in your current session:\n#   %s\n", shell.loadHint)
		return shell.generate(cmd.OutOrStdout())
	}

	if shell.installPath == nil {
		return fmt.Errorf("automatic install is not supported for %s; add the output of 'tasker completion %s' to your profile", args[0], args[0])
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := shell.installPath(home)
	if err := writeCompletionFile(target, shell.generate); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Completions installed to %s\n%s\n", target, shell.installNote)
	return nil
}

// writeCompletionFile creates target and its directory and writes the
// generated script into it.
func writeCompletionFile(target string, generate func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := generate(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}
