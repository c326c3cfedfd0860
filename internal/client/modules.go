package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxModuleSize = 8 << 20

// Module is one loaded script version.
type Module struct {
	Path     string
	Version  int
	Source   []byte
	LoadedAt time.Time
}

// SwapFunc activates a freshly fetched module. prev is nil on first load.
// Returning an error, or panicking, keeps prev active.
type SwapFunc func(prev, next *Module) error

// ModuleRegistry hot-replaces script modules. Instead of evaluating
// fetched text in place, each load produces a new versioned Module that
// swap hooks activate; the registry entry only moves forward once every
// hook accepted it.
type ModuleRegistry struct {
	mu      sync.RWMutex
	base    *url.URL
	client  *http.Client
	modules map[string]*Module
	hooks   []SwapFunc
	now     func() time.Time
}

// NewModuleRegistry resolves scripts against baseURL, the page location.
// A nil client uses http.DefaultClient.
func NewModuleRegistry(baseURL string, client *http.Client) (*ModuleRegistry, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", baseURL)
	}

	// Resolve relative to the directory, not the page file.
	if !strings.HasSuffix(base.Path, "/") {
		if i := strings.LastIndex(base.Path, "/"); i >= 0 {
			base.Path = base.Path[:i+1]
		} else {
			base.Path = "/"
		}
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &ModuleRegistry{
		base:    base,
		client:  client,
		modules: make(map[string]*Module),
		now:     time.Now,
	}, nil
}

// OnSwap registers a hook run for every successful fetch.
func (r *ModuleRegistry) OnSwap(fn SwapFunc) {
	r.mu.Lock()
	r.hooks = append(r.hooks, fn)
	r.mu.Unlock()
}

// URL returns the cache-busted address of path.
func (r *ModuleRegistry) URL(path string, stamp int64) string {
	ref := &url.URL{
		Path:     "./" + strings.TrimPrefix(path, "/"),
		RawQuery: "v=" + strconv.FormatInt(stamp, 10),
	}

	return r.base.ResolveReference(ref).String()
}

// Load fetches the current source of path and swaps it in. On any error
// the previously active module stays in place.
func (r *ModuleRegistry) Load(ctx context.Context, path string) (*Module, error) {
	now := r.now()

	src, err := r.fetch(ctx, r.URL(path, now.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("loading module %s: %w", path, err)
	}

	r.mu.RLock()
	prev := r.modules[path]
	hooks := append([]SwapFunc(nil), r.hooks...)
	r.mu.RUnlock()

	next := &Module{Path: path, Version: 1, Source: src, LoadedAt: now}
	if prev != nil {
		next.Version = prev.Version + 1
	}

	for _, hook := range hooks {
		if err := runHook(hook, prev, next); err != nil {
			return nil, fmt.Errorf("activating module %s: %w", path, err)
		}
	}

	r.mu.Lock()
	// A concurrent load may have moved the entry on; versions only grow.
	if cur := r.modules[path]; cur != nil && cur.Version >= next.Version {
		next.Version = cur.Version + 1
	}
	r.modules[path] = next
	r.mu.Unlock()

	return next, nil
}

// Get returns the active module for path.
func (r *ModuleRegistry) Get(path string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[path]

	return m, ok
}

// Len returns the number of loaded modules.
func (r *ModuleRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.modules)
}

func (r *ModuleRegistry) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %s", target, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}

	if len(data) > maxModuleSize {
		return nil, errors.New("module exceeds size limit")
	}

	return data, nil
}

func runHook(hook SwapFunc, prev, next *Module) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("swap hook panicked: %v", rec)
		}
	}()

	return hook(prev, next)
}
