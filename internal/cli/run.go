package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/hub"
	"github.com/hupe1980/livemirror/internal/logging"
	"github.com/hupe1980/livemirror/internal/mirror"
	"github.com/hupe1980/livemirror/internal/protocol"
	"github.com/hupe1980/livemirror/internal/server"
	"github.com/hupe1980/livemirror/internal/watch"
)

type runOptions struct {
	copyAll  bool
	watchAll bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mirror the source tree and live-reload connected browsers",
		Long: `Run performs the two steps of the live-reload pipeline. They are
independent and may be combined:

  --copy-all  (-c)  reconcile the whole source tree into the mirror once,
                    copying only files whose content differs. No client
                    is notified about these copies.
  --watch-all (-w)  open the notification channel and watch the source
                    tree. Bursts of changes are coalesced, and one
                    notification for the latest path is broadcast per
                    quiet period.

With --mirror every live change is also copied into the mirror before
clients are notified.`,
		Example: `  livemirror run -c -w
  livemirror run -w --mirror --port 9996
  livemirror run -c --src ./web --dest ./public`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.copyAll, "copy-all", "c", false, "reconcile the whole source tree into the mirror")
	f.BoolVarP(&opts.watchAll, "watch-all", "w", false, "start the notification channel and watch for changes")

	registerTreeFlags(cmd)
	registerChannelFlags(cmd)

	return cmd
}

func runRun(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	if !opts.copyAll && !opts.watchAll {
		return &ExitError{Code: 2, Err: errors.New("nothing to do: pass --copy-all (-c), --watch-all (-w), or both")}
	}

	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	var syncer *mirror.Synchronizer

	if opts.copyAll || cfg.Mirror {
		s, err := newSynchronizer(cfg, logger)
		if err != nil {
			return err
		}

		syncer = s
	}

	if opts.copyAll {
		stats, err := syncer.Reconcile(ctx)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		if !cfg.Quiet {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "mirrored %s -> %s: %s\n", syncer.Src(), syncer.Dest(), stats)
		}
	}

	if !opts.watchAll {
		return nil
	}

	return runWatch(ctx, cmd, cfg, logger, syncer)
}

// runWatch serves the notification channel and feeds the watcher into it
// until ctx is cancelled or the process is interrupted.
func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger, syncer *mirror.Synchronizer) error {
	h := hub.New(hub.Options{Logger: logging.Component(logger, "hub")})

	staticDir := ""
	if cfg.Serve {
		staticDir = cfg.Src
		if cfg.Mirror {
			staticDir = cfg.Dest
		}
	}

	srv, err := server.New(server.Options{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Hub:       h,
		StaticDir: staticDir,
		Logger:    logging.Component(logger, "server"),
	})
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	// Binding early turns a busy port into a startup failure instead of a
	// watcher that notifies nobody.
	if err := srv.Listen(); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	// Keep the interface nil when mirroring is off.
	var m watch.Mirror
	if cfg.Mirror && syncer != nil {
		m = syncer
	}

	coalescer := watch.NewCoalescer(watch.CoalescerOptions{
		QuietPeriod: cfg.Debounce,
		Strategy:    cfg.NotificationStrategy(),
		Mirror:      m,
		Notify:      func(n protocol.Notification) { h.Broadcast(n) },
		Logger:      logging.Component(logger, "watch"),
	})
	defer coalescer.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.ErrOrStderr()
	if cfg.Quiet {
		out = io.Discard
	}

	_, _ = fmt.Fprintf(out, "notification channel on ws://%s\n", srv.Addr())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	g.Go(func() error {
		// The watcher also owns signal handling; when it returns the
		// server has to stop too.
		defer cancel()

		return watch.Run(gctx, watch.Options{
			Root:        cfg.Src,
			Ignore:      cfg.Ignore,
			ExcludeDirs: []string{cfg.Dest},
			Logger:      logging.Component(logger, "watch"),
			Out:         out,
		}, coalescer)
	})

	if err := g.Wait(); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}
