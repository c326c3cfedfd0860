package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/output"
)

func newConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration after merging defaults, the config
file, LIVEMIRROR_* environment variables, and flags. The default YAML
output can be saved as .livemirror.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			data, err := output.DefaultRegistry().Encode(format, cfg)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			w := cmd.OutOrStdout()

			if cfg.ConfigFile != "" && format == "yaml" {
				_, _ = fmt.Fprintf(w, "# loaded from %s\n", cfg.ConfigFile)
			}

			return output.NewStdoutWriter(w).Write(data)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "yaml", "output format: yaml, json")
	completeValues(cmd, "format", "yaml", "json")

	registerTreeFlags(cmd)
	registerChannelFlags(cmd)

	return cmd
}
