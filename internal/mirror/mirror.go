// Package mirror keeps a destination tree in content-sync with a source
// tree. Files are compared by fingerprint, not by timestamp, so a second
// reconciliation over an unchanged tree writes nothing.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/livemirror/internal/fingerprint"
)

// Stats counts the outcome of a reconciliation pass.
type Stats struct {
	Copied    atomic.Int64
	Unchanged atomic.Int64
	Ignored   atomic.Int64
	Failed    atomic.Int64
}

// String returns a one-line summary.
func (s *Stats) String() string {
	return fmt.Sprintf("%d copied, %d unchanged, %d ignored, %d failed",
		s.Copied.Load(), s.Unchanged.Load(), s.Ignored.Load(), s.Failed.Load())
}

// Options configures a Synchronizer.
type Options struct {
	// Src is the watched source root.
	Src string

	// Dest is the mirror root.
	Dest string

	// Ignore lists reserved path prefixes. Nil means DefaultIgnore.
	Ignore []string

	// Workers bounds concurrent directory reconciliation.
	// Defaults to GOMAXPROCS if zero.
	Workers int

	// Hasher compares files. Defaults to SHA-256.
	Hasher *fingerprint.Hasher

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Synchronizer reconciles Src into Dest.
type Synchronizer struct {
	src     string
	dest    string
	ignore  *IgnoreSet
	workers int
	hasher  *fingerprint.Hasher
	logger  *slog.Logger
}

// New validates opts and returns a Synchronizer.
func New(opts Options) (*Synchronizer, error) {
	if opts.Src == "" {
		return nil, errors.New("mirror: source directory is required")
	}

	if opts.Dest == "" {
		return nil, errors.New("mirror: destination directory is required")
	}

	src, err := filepath.Abs(opts.Src)
	if err != nil {
		return nil, fmt.Errorf("resolving source %q: %w", opts.Src, err)
	}

	dest, err := filepath.Abs(opts.Dest)
	if err != nil {
		return nil, fmt.Errorf("resolving destination %q: %w", opts.Dest, err)
	}

	if src == dest {
		return nil, fmt.Errorf("mirror: source and destination are the same directory %s", src)
	}

	ignore := opts.Ignore
	if ignore == nil {
		ignore = DefaultIgnore
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	hasher := opts.Hasher
	if hasher == nil {
		hasher = fingerprint.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ignoreSet := NewIgnoreSet(ignore)

	// A mirror nested in its source would otherwise be copied into itself.
	if ignoreSet.ExcludeDir(src, dest) {
		logger.Debug("excluding nested destination", slog.String("dest", dest))
	}

	return &Synchronizer{
		src:     src,
		dest:    dest,
		ignore:  ignoreSet,
		workers: workers,
		hasher:  hasher,
		logger:  logger,
	}, nil
}

// Src returns the absolute source root.
func (s *Synchronizer) Src() string { return s.src }

// Dest returns the absolute mirror root.
func (s *Synchronizer) Dest() string { return s.dest }

// Ignored reports whether the root-relative path is reserved.
func (s *Synchronizer) Ignored(rel string) bool {
	return s.ignore.Match(filepath.ToSlash(rel))
}

// Reconcile walks Src and copies every regular file whose mirror copy is
// absent or differs. Sibling directories are reconciled concurrently.
// Per-file failures are logged and counted, never returned; the error
// result is reserved for an unreadable source root or a cancelled ctx.
func (s *Synchronizer) Reconcile(ctx context.Context) (*Stats, error) {
	info, err := os.Stat(s.src)
	if err != nil {
		return nil, fmt.Errorf("reading source directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", s.src)
	}

	if err := ensureDir(s.dest, ""); err != nil {
		return nil, fmt.Errorf("creating destination directory: %w", err)
	}

	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var visit func(rel string) error

	visit = func(rel string) error {
		if err := gctx.Err(); err != nil {
			return err
		}

		entries, err := os.ReadDir(filepath.Join(s.src, rel))
		if err != nil {
			stats.Failed.Add(1)
			s.logger.Error("reading directory", slog.String("path", rel), slog.String("error", err.Error()))

			return nil
		}

		for _, entry := range entries {
			childRel := filepath.Join(rel, entry.Name())

			if s.Ignored(childRel) {
				stats.Ignored.Add(1)
				continue
			}

			switch {
			case entry.IsDir():
				if err := ensureDir(s.dest, childRel); err != nil {
					stats.Failed.Add(1)
					s.logger.Error("creating mirror directory", slog.String("path", childRel), slog.String("error", err.Error()))

					continue
				}

				next := childRel
				fn := func() error { return visit(next) }

				// Run inline when the pool is saturated so nested walks
				// cannot deadlock waiting on their own slots.
				if !g.TryGo(fn) {
					if err := fn(); err != nil {
						return err
					}
				}
			case entry.Type().IsRegular():
				s.reconcileFile(childRel, stats)
			default:
				s.logger.Debug("skipping non-regular entry", slog.String("path", childRel))
			}
		}

		return nil
	}

	g.Go(func() error { return visit("") })

	if err := g.Wait(); err != nil {
		return stats, fmt.Errorf("reconciling %s: %w", s.src, err)
	}

	s.logger.Info("reconciliation finished",
		slog.String("src", s.src),
		slog.String("dest", s.dest),
		slog.Int64("copied", stats.Copied.Load()),
		slog.Int64("unchanged", stats.Unchanged.Load()),
		slog.Int64("failed", stats.Failed.Load()),
	)

	return stats, nil
}

func (s *Synchronizer) reconcileFile(rel string, stats *Stats) {
	srcPath := filepath.Join(s.src, rel)
	destPath := filepath.Join(s.dest, rel)

	if info, err := os.Lstat(destPath); err == nil && info.Mode().IsRegular() && s.hasher.Equal(srcPath, destPath) {
		stats.Unchanged.Add(1)
		return
	}

	if err := copyFile(srcPath, destPath); err != nil {
		stats.Failed.Add(1)
		s.logger.Error("copying file", slog.String("path", rel), slog.String("error", err.Error()))

		return
	}

	stats.Copied.Add(1)
	s.logger.Debug("copied", slog.String("path", rel), slog.String("dest", destPath))
}

// SyncPath applies the single-path equivalent of Reconcile for a live
// change. When removed is true, or the source no longer exists, the mirror
// entry is deleted. It reports whether the mirror was modified.
func (s *Synchronizer) SyncPath(rel string, removed bool) (bool, error) {
	rel = filepath.Clean(rel)
	if rel == "." || s.Ignored(rel) {
		return false, nil
	}

	srcPath := filepath.Join(s.src, rel)
	destPath := filepath.Join(s.dest, rel)

	info, err := os.Lstat(srcPath)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", srcPath, err)
	}

	if removed || os.IsNotExist(err) {
		if _, statErr := os.Lstat(destPath); os.IsNotExist(statErr) {
			return false, nil
		}

		if rmErr := os.RemoveAll(destPath); rmErr != nil {
			return false, fmt.Errorf("removing %s: %w", destPath, rmErr)
		}

		s.logger.Info("removed from mirror", slog.String("path", rel))

		return true, nil
	}

	if info.IsDir() {
		if err := ensureDir(s.dest, rel); err != nil {
			return false, err
		}

		return true, nil
	}

	if !info.Mode().IsRegular() {
		return false, nil
	}

	if err := ensureDir(s.dest, filepath.Dir(rel)); err != nil {
		return false, err
	}

	if destInfo, statErr := os.Lstat(destPath); statErr == nil && destInfo.Mode().IsRegular() && s.hasher.Equal(srcPath, destPath) {
		return false, nil
	}

	if err := copyFile(srcPath, destPath); err != nil {
		return false, err
	}

	s.logger.Info("copied to mirror", slog.String("path", rel), slog.String("dest", destPath))

	return true, nil
}
