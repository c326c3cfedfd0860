// Package client applies change notifications on the browser side of the
// channel: it classifies each changed path and hot-swaps scripts,
// cache-busts stylesheets, or reloads the page, then optionally
// invalidates the host application's page state.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hupe1980/livemirror/internal/protocol"
)

// Event names delivered to subscribers.
const (
	EventFileChange = "fileChange"
	EventHashChange = "hashchange"
)

// Event is the synthetic notification listeners receive.
type Event struct {
	Name     string
	Type     string
	FilePath string
}

// Listener receives router events. It is called synchronously.
type Listener func(Event)

// Document is the page the router mutates.
type Document interface {
	Stylesheets(path string) []*html.Node
	SetHref(link *html.Node, href string)
	AppendStylesheet(href string) error
	Reload(ctx context.Context) error
}

// ModuleLoader hot-replaces a script by path.
type ModuleLoader interface {
	Load(ctx context.Context, path string) (*Module, error)
}

// PageState is the host application's cached view state.
type PageState interface {
	Invalidate()
}

// Options configures a Router.
type Options struct {
	Document  Document
	Modules   ModuleLoader
	PageState PageState

	// Now stamps cache-busting parameters. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Router dispatches notifications. It holds no state between
// notifications besides its subscribers, so concurrent notifications run
// independently and the last DOM write wins.
type Router struct {
	doc       Document
	modules   ModuleLoader
	pageState PageState
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewRouter creates a Router. Missing collaborators disable the matching
// behaviour.
func NewRouter(opts Options) *Router {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		doc:       opts.Document,
		modules:   opts.Modules,
		pageState: opts.PageState,
		now:       now,
		logger:    logger,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and returns a function that removes it.
func (r *Router) Subscribe(l Listener) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = l
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

func (r *Router) dispatch(ev Event) {
	r.mu.RLock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.RUnlock()

	for _, l := range listeners {
		r.safeCall(l, ev)
	}
}

func (r *Router) safeCall(l Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("listener panicked", slog.String("event", ev.Name), slog.Any("panic", rec))
		}
	}()

	l(ev)
}

// HandleMessage decodes one raw channel message and applies it. Decode
// failures are logged and returned; they never stop the caller's loop.
func (r *Router) HandleMessage(ctx context.Context, data []byte) error {
	n, err := protocol.Decode(data)
	if errors.Is(err, protocol.ErrUnknownType) {
		r.logger.Debug("ignoring message", slog.String("error", err.Error()))
		return err
	}

	if err != nil {
		r.logger.Error("parsing message", slog.String("error", err.Error()))
		return err
	}

	return r.OnNotification(ctx, n)
}

// OnNotification applies n to the page. Apply failures are logged and
// returned, and leave the page on its previous version.
func (r *Router) OnNotification(ctx context.Context, n protocol.Notification) error {
	r.dispatch(Event{Name: EventFileChange, Type: n.Type, FilePath: n.FilePath})

	kind := Classify(n.FilePath)

	var applyErr error

	switch kind {
	case KindScript:
		applyErr = r.swapScript(ctx, n.FilePath)
	case KindStylesheet:
		applyErr = r.refreshStylesheet(n.FilePath)
	case KindMarkup:
		// A reload supersedes everything else, including invalidation.
		return r.reload(ctx, n.FilePath)
	case KindOther:
	}

	if n.Strategy == protocol.StrategyHashChange {
		if r.pageState != nil {
			r.pageState.Invalidate()
		}

		r.dispatch(Event{Name: EventHashChange, Type: n.Type, FilePath: n.FilePath})
	}

	return applyErr
}

func (r *Router) swapScript(ctx context.Context, path string) error {
	if r.modules == nil {
		return nil
	}

	m, err := r.modules.Load(ctx, path)
	if err != nil {
		r.logger.Error("hot-swapping script", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}

	r.logger.Info("script hot-swapped", slog.String("path", path), slog.Int("version", m.Version))

	return nil
}

func (r *Router) refreshStylesheet(path string) error {
	if r.doc == nil {
		return nil
	}

	href := "./" + path + "?v=" + strconv.FormatInt(r.now().UnixMilli(), 10)

	links := r.doc.Stylesheets(path)
	for _, link := range links {
		r.doc.SetHref(link, href)
	}

	if len(links) > 0 {
		r.logger.Info("stylesheet refreshed", slog.String("path", path), slog.Int("links", len(links)))
		return nil
	}

	if err := r.doc.AppendStylesheet(href); err != nil {
		r.logger.Error("adding stylesheet", slog.String("path", path), slog.String("error", err.Error()))
		return fmt.Errorf("adding stylesheet %s: %w", path, err)
	}

	r.logger.Info("stylesheet added", slog.String("path", path))

	return nil
}

func (r *Router) reload(ctx context.Context, path string) error {
	if r.doc == nil {
		return nil
	}

	if err := r.doc.Reload(ctx); err != nil {
		r.logger.Error("reloading page", slog.String("path", path), slog.String("error", err.Error()))
		return err
	}

	r.logger.Info("page reloaded", slog.String("path", path))

	return nil
}
