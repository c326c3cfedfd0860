package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/livemirror/internal/mirror"
)

// Sink consumes translated change events.
type Sink interface {
	OnRawEvent(ev ChangeEvent)
}

// Options configures the watch behaviour.
type Options struct {
	// Root is the source directory to watch recursively.
	Root string

	// Ignore lists reserved path prefixes that are never watched.
	// Nil means mirror.DefaultIgnore.
	Ignore []string

	// ExcludeDirs lists directories, such as the mirror destination, that
	// are skipped when they lie inside Root.
	ExcludeDirs []string

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer

	// Ready, when set, is closed once every directory is being watched.
	Ready chan<- struct{}
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Logger: slog.Default(),
		Out:    os.Stderr,
	}
}

// Run starts the file watcher and blocks until the context is cancelled
// or a SIGINT/SIGTERM signal is received. Existing files produce no events.
func Run(ctx context.Context, opts Options, sink Sink) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	ignore := opts.Ignore
	if ignore == nil {
		ignore = mirror.DefaultIgnore
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return fmt.Errorf("resolving watch root %q: %w", opts.Root, err)
	}

	ignoreSet := mirror.NewIgnoreSet(ignore)
	for _, dir := range opts.ExcludeDirs {
		ignoreSet.ExcludeDir(root, dir)
	}

	w := &treeWatcher{
		root:   root,
		dirs:   make(map[string]struct{}),
		ignore: ignoreSet,
		sink:   sink,
		logger: opts.Logger,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	w.fs = watcher

	if err := w.addRecursive(root, false); err != nil {
		return fmt.Errorf("watching source directory: %w", err)
	}

	// Trap SIGINT / SIGTERM for graceful shutdown.
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %s\n", root)

	if opts.Ready != nil {
		close(opts.Ready)
	}

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			w.handle(event)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// treeWatcher is only touched from the Run loop.
type treeWatcher struct {
	root   string
	dirs   map[string]struct{}
	ignore *mirror.IgnoreSet
	fs     *fsnotify.Watcher
	sink   Sink
	logger *slog.Logger
}

func (w *treeWatcher) handle(event fsnotify.Event) {
	if !isRelevant(event) {
		return
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return
	}

	if w.ignore.Match(filepath.ToSlash(rel)) {
		return
	}

	// A watched directory going away is an unlinkDir; the files inside it
	// report their own removals. Both the parent and the directory's own
	// watch may report it, so the path stays known until a file reuses it.
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		if _, wasDir := w.dirs[event.Name]; wasDir {
			return
		}
	}

	isDir := false
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		if info, statErr := os.Stat(event.Name); statErr == nil {
			isDir = info.IsDir()
		}
	}

	// A new directory is watched too, and files that landed in it before
	// the watch was registered are reported as added.
	if isDir && event.Has(fsnotify.Create) {
		if addErr := w.addRecursive(event.Name, true); addErr != nil {
			w.logger.Warn("watching new directory", slog.String("path", rel), slog.String("error", addErr.Error()))
		}

		return
	}

	if !isDir {
		delete(w.dirs, event.Name)
	}

	w.sink.OnRawEvent(ChangeEvent{Path: rel, Kind: kindOf(event.Op, isDir)})
}

// addRecursive walks dir and adds all directories to the watcher, skipping
// reserved prefixes. When emit is set every regular file found is reported
// as added.
func (w *treeWatcher) addRecursive(dir string, emit bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return relErr
		}

		if rel != "." && w.ignore.Match(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			if err := w.fs.Add(path); err != nil {
				return err
			}

			w.dirs[path] = struct{}{}

			return nil
		}

		if emit && d.Type().IsRegular() {
			w.sink.OnRawEvent(ChangeEvent{Path: rel, Kind: KindAdded})
		}

		return nil
	})
}

// isRelevant filters out attribute-only events and editor scratch files.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files.
	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") ||
		strings.HasSuffix(name, ".swx") || strings.HasPrefix(name, "#") ||
		strings.HasPrefix(name, ".livemirror-") {
		return false
	}

	return true
}
