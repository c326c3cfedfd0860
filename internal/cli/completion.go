package cli

import (
	"github.com/spf13/cobra"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Completion prints a completion script for livemirror. Besides command
and flag names it completes the fixed flag values: --hash (sha256,
blake3), --strategy, --format, --log-level, and --log-format. Paths for
--src and --dest complete as directories.

Try it in the current shell:
  $ source <(livemirror completion bash)
  $ livemirror run --copy-all --watch-all --hash <TAB>

Install it for new sessions:
  Bash:       livemirror completion bash > /etc/bash_completion.d/livemirror
  Zsh:        livemirror completion zsh > "${fpath[1]}/_livemirror"
  Fish:       livemirror completion fish > ~/.config/fish/completions/livemirror.fish
  PowerShell: livemirror completion powershell > livemirror.ps1
              and source livemirror.ps1 from your profile.
`,
		// Override parent PersistentPreRunE: completion needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root, w := cmd.Root(), cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			default:
				return root.GenPowerShellCompletionWithDesc(w)
			}
		},
	}

	return cmd
}

// completeValues registers a fixed set of completions for flag on cmd.
// Registration only fails for unknown flags, which is a wiring bug.
func completeValues(cmd *cobra.Command, flag string, values ...string) {
	err := cmd.RegisterFlagCompletionFunc(flag, func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	})
	if err != nil {
		panic(err)
	}
}

// completeDirs makes flag on cmd complete directory names only.
func completeDirs(cmd *cobra.Command, flags ...string) {
	for _, flag := range flags {
		if err := cmd.MarkFlagDirname(flag); err != nil {
			panic(err)
		}
	}
}
