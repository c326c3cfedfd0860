// Package livemirror provides a public Go API for fingerprint-based tree
// mirroring, the same reconciliation the CLI performs before watching.
//
// Basic usage:
//
//	res, err := livemirror.Reconcile(ctx, "./src", "./build")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Copied, "files copied")
//
// With options:
//
//	planned, err := livemirror.Plan(ctx, "./src", "./build",
//	    livemirror.WithHash("blake3"),
//	    livemirror.WithIgnore([]string{".git", "node_modules", "dist"}),
//	)
package livemirror

import (
	"context"
	"io"
	"log/slog"

	"github.com/hupe1980/livemirror/internal/fingerprint"
	"github.com/hupe1980/livemirror/internal/mirror"
)

// Option configures reconciliation.
// Use the With* functions to create Options.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	hash    string
	ignore  []string
	workers int
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHash selects the fingerprint algorithm: "sha256" (default) or "blake3".
func WithHash(algorithm string) Option { return func(o *options) { o.hash = algorithm } }

// WithIgnore replaces the reserved path names (default: .git, node_modules).
func WithIgnore(names []string) Option { return func(o *options) { o.ignore = names } }

// WithWorkers bounds parallel reconciliation (default: GOMAXPROCS).
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// Result summarizes a reconciliation.
type Result struct {
	Copied    int64
	Unchanged int64
	Ignored   int64
	Failed    int64
}

// PlannedCopy is one file Reconcile would write, with the reason:
// "missing", "changed", or "type-changed".
type PlannedCopy = mirror.PlannedCopy

// Reconcile copies every file under src whose copy under dest is missing
// or differs in content. Per-file failures are counted in Result.Failed.
func Reconcile(ctx context.Context, src, dest string, opts ...Option) (*Result, error) {
	s, err := newSynchronizer(src, dest, opts)
	if err != nil {
		return nil, err
	}

	stats, err := s.Reconcile(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{
		Copied:    stats.Copied.Load(),
		Unchanged: stats.Unchanged.Load(),
		Ignored:   stats.Ignored.Load(),
		Failed:    stats.Failed.Load(),
	}, nil
}

// Plan reports what Reconcile would copy without writing anything.
func Plan(ctx context.Context, src, dest string, opts ...Option) ([]PlannedCopy, error) {
	s, err := newSynchronizer(src, dest, opts)
	if err != nil {
		return nil, err
	}

	return s.Plan(ctx)
}

func newSynchronizer(src, dest string, opts []Option) (*mirror.Synchronizer, error) {
	o := &options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(o)
	}

	hasher, err := fingerprint.New(o.hash, fingerprint.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	return mirror.New(mirror.Options{
		Src:     src,
		Dest:    dest,
		Ignore:  o.ignore,
		Workers: o.workers,
		Hasher:  hasher,
		Logger:  o.logger,
	})
}
