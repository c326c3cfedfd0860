package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/livemirror/internal/output"
	"github.com/hupe1980/livemirror/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		jsonOutput bool
		short      bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the livemirror build",
		Long: `Version prints the livemirror release, commit, build date, Go version,
and platform. Include it when reporting a mirror or reload problem.

--short prints only the release, which suits scripts that check the
installed livemirror before starting "livemirror run -cw".`,
		Example: `  livemirror version
  livemirror version --short
  livemirror version --format yaml`,
		Args: cobra.NoArgs,
		// Override parent PersistentPreRunE: version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()
			w := cmd.OutOrStdout()

			switch {
			case short:
				_, err := fmt.Fprintln(w, info.Version)
				return err
			case jsonOutput:
				j, err := info.JSON()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(w, j)

				return err
			case format != output.FormatText:
				data, err := output.DefaultRegistry().Encode(format, info)
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}

				return output.NewStdoutWriter(w).Write(data)
			}

			_, err := fmt.Fprintln(w, info.String())

			return err
		},
	}

	f := cmd.Flags()
	f.BoolVar(&jsonOutput, "json", false, "shorthand for --format json")
	f.BoolVar(&short, "short", false, "print only the release")
	f.StringVarP(&format, "format", "o", output.FormatText, "output format: text, yaml, json")
	cmd.MarkFlagsMutuallyExclusive("json", "short", "format")
	completeValues(cmd, "format", output.FormatText, "yaml", "json")

	return cmd
}
