package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/logging"
	"github.com/hupe1980/livemirror/internal/mirror"
	"github.com/hupe1980/livemirror/internal/output"
)

type syncOptions struct {
	dryRun     bool
	diff       bool
	format     string
	reportFile string
}

func newSyncCommand() *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the source tree into the mirror once",
		Long: `Sync walks the source tree and copies every file whose mirror copy is
missing or differs in content. Version-control and dependency-cache
directories are never mirrored.

Use --dry-run to list what would be copied without writing anything,
and --diff to print a unified diff for each changed text file.
--format yaml|json prints a structured report instead of text, and
--report-file writes that report to a file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.dryRun, "dry-run", false, "list files that would be copied without writing")
	f.BoolVar(&opts.diff, "diff", false, "print unified diffs for changed text files")
	f.StringVarP(&opts.format, "format", "o", output.FormatText, "report format: text, yaml, json")
	f.StringVar(&opts.reportFile, "report-file", "", "write the report to a file instead of stdout")

	completeValues(cmd, "format", output.FormatText, "yaml", "json")

	registerTreeFlags(cmd)

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, opts *syncOptions) error {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	structured := opts.format != output.FormatText || opts.reportFile != ""

	format := opts.format
	if format == output.FormatText {
		format = "yaml"
	}

	registry := output.DefaultRegistry()
	if structured {
		if _, err := registry.Encoder(format); err != nil {
			return &ExitError{Code: 2, Err: err}
		}
	}

	syncer, err := newSynchronizer(cfg, logger)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	report := &output.SyncReport{
		Src:    syncer.Src(),
		Dest:   syncer.Dest(),
		Hash:   cfg.Hash,
		DryRun: opts.dryRun,
	}

	if opts.dryRun || opts.diff || structured {
		planned, planErr := syncer.Plan(ctx)
		if planErr != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("planning sync: %w", planErr)}
		}

		report.Planned = planned

		if !structured {
			printPlan(w, syncer, planned, opts.diff, !cfg.NoColor, logger)
		}
	}

	if !opts.dryRun {
		stats, reconcileErr := syncer.Reconcile(ctx)
		if reconcileErr != nil {
			return &ExitError{Code: 1, Err: reconcileErr}
		}

		report.Stats = output.SnapshotStats(stats)

		if !structured {
			_, _ = fmt.Fprintf(w, "mirrored %s -> %s: %s\n", syncer.Src(), syncer.Dest(), stats)
		}
	}

	if structured {
		data, encErr := registry.Encode(format, report)
		if encErr != nil {
			return &ExitError{Code: 1, Err: encErr}
		}

		writer := output.NewWriter(opts.reportFile, w, output.WithLogger(logger))
		if writeErr := writer.Write(data); writeErr != nil {
			return &ExitError{Code: 1, Err: writeErr}
		}
	}

	if report.Stats != nil && report.Stats.Failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d file(s) could not be mirrored", report.Stats.Failed)}
	}

	return nil
}

func printPlan(w io.Writer, syncer *mirror.Synchronizer, planned []mirror.PlannedCopy, diff, color bool, logger *slog.Logger) {
	for _, p := range planned {
		_, _ = fmt.Fprintf(w, "  %s (%s)\n", p.Path, p.Reason)

		if !diff {
			continue
		}

		result, err := syncer.Diff(p.Path)
		if err != nil {
			logger.Warn("diffing file", slog.String("path", p.Path), slog.String("error", err.Error()))
			continue
		}

		mirror.WriteDiff(w, p.Path, result, color)
	}

	_, _ = fmt.Fprintf(w, "%d file(s) would be copied\n", len(planned))
}
