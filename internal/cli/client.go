package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/livemirror/internal/client"
	"github.com/hupe1980/livemirror/internal/config"
	"github.com/hupe1980/livemirror/internal/logging"
)

type clientOptions struct {
	host    string
	page    string
	baseURL string
}

func newClientCommand() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run a headless live-reload client",
		Long: `Client connects to a running notification channel and applies every
change the way a browser page would: scripts are re-fetched and swapped
into a module registry, stylesheet links are cache-busted in the parsed
page, and markup changes reload the page. Every step is printed.

The client only activates on local development hosts (see the
allowed-hosts config key).`,
		Example: `  livemirror client
  livemirror client --page ./build/index.html --base-url http://localhost:8080/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd.Context(), cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.host, "host", "localhost", "page hostname; the channel is dialed on the same host")
	f.Int("port", config.DefaultPort, "channel port")
	f.StringVar(&opts.page, "page", "index.html", "page to load: a local file or a path relative to --base-url")
	f.StringVar(&opts.baseURL, "base-url", "", "page location (default http://<host>:<port>/)")

	return cmd
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.w.Write(p)
}

// printedPageState reports invalidations on w.
type printedPageState struct{ w io.Writer }

func (p printedPageState) Invalidate() {
	_, _ = fmt.Fprintln(p.w, "page state invalidated")
}

func runClient(ctx context.Context, cmd *cobra.Command, opts *clientOptions) error {
	cfg := config.FromContext(ctx)
	logger := logging.Component(logging.FromContext(ctx), "client")
	// Messages are applied concurrently.
	w := &lockedWriter{w: cmd.OutOrStdout()}

	policy, err := client.NewHostPolicy(cfg.AllowedHosts)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	base := opts.baseURL
	if base == "" {
		base = (&url.URL{Scheme: "http", Host: net.JoinHostPort(opts.host, strconv.Itoa(cfg.Port)), Path: "/"}).String()
	}

	modules, err := client.NewModuleRegistry(base, nil)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	modules.OnSwap(func(_, next *client.Module) error {
		_, _ = fmt.Fprintf(w, "hot-swapped %s v%d (%d bytes)\n", next.Path, next.Version, len(next.Source))
		return nil
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var doc *client.HTMLDocument
	if policy.Allowed(opts.host) {
		source, srcErr := pageSource(opts.page, base)
		if srcErr != nil {
			return &ExitError{Code: 2, Err: srcErr}
		}

		doc, err = client.NewHTMLDocument(ctx, source)
		if err != nil {
			return &ExitError{Code: 1, Err: fmt.Errorf("loading page %s: %w", opts.page, err)}
		}
	}

	routerOpts := client.Options{
		Modules:   modules,
		PageState: printedPageState{w: w},
		Logger:    logger,
	}

	// A nil *HTMLDocument must not become a non-nil Document.
	if doc != nil {
		routerOpts.Document = doc
	}

	router := client.NewRouter(routerOpts)

	router.Subscribe(func(ev client.Event) {
		_, _ = fmt.Fprintf(w, "%s %s\n", ev.Name, ev.FilePath)
	})

	err = client.Connect(ctx, client.ConnectOptions{
		Host:   opts.host,
		Port:   cfg.Port,
		Policy: policy,
		Out:    cmd.ErrOrStderr(),
		Logger: logger,
	}, router)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

// pageSource prefers a local file and falls back to fetching the page
// relative to base.
func pageSource(page, base string) (client.PageSource, error) {
	if info, err := os.Stat(page); err == nil && info.Mode().IsRegular() {
		return client.FileSource(page), nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", base, err)
	}

	ref, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("parsing page %q: %w", page, err)
	}

	return client.HTTPSource(nil, baseURL.ResolveReference(ref).String()), nil
}
