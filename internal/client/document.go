package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageSource opens the current page markup.
type PageSource func(ctx context.Context) (io.ReadCloser, error)

// FileSource reads the page from disk.
func FileSource(path string) PageSource {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// HTTPSource fetches the page over HTTP. A nil client uses
// http.DefaultClient.
func HTTPSource(client *http.Client, url string) PageSource {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
		}

		return resp.Body, nil
	}
}

// HTMLDocument is a parsed page whose stylesheet links can be rewritten in
// place. It is safe for concurrent use.
type HTMLDocument struct {
	mu      sync.Mutex
	source  PageSource
	root    *html.Node
	reloads int
}

// NewHTMLDocument loads and parses the page from source.
func NewHTMLDocument(ctx context.Context, source PageSource) (*HTMLDocument, error) {
	if source == nil {
		return nil, errors.New("client: page source is required")
	}

	root, err := loadPage(ctx, source)
	if err != nil {
		return nil, err
	}

	return &HTMLDocument{source: source, root: root}, nil
}

// ParseHTMLDocument parses markup held in memory. Reload restores it.
func ParseHTMLDocument(markup []byte) (*HTMLDocument, error) {
	data := bytes.Clone(markup)

	return NewHTMLDocument(context.Background(), func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func loadPage(ctx context.Context, source PageSource) (*html.Node, error) {
	rc, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	defer rc.Close()

	root, err := html.Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing page: %w", err)
	}

	return root, nil
}

// Stylesheets returns every <link rel="stylesheet"> whose href refers to
// path, in document order. The query and fragment are ignored, and the href
// must equal path or end with "/"+path, so "a.css" never matches "data.css".
func (d *HTMLDocument) Stylesheets(path string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var links []*html.Node

	var walk func(n *html.Node)

	walk = func(n *html.Node) {
		if isStylesheetLink(n) && hrefRefersTo(attr(n, "href"), path) {
			links = append(links, n)
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(d.root)

	return links
}

func hrefRefersTo(href, path string) bool {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "./"), "/")
	if path == "" {
		return false
	}

	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}

	return href == path || strings.HasSuffix(href, "/"+path)
}

// SetHref replaces the href attribute of link.
func (d *HTMLDocument) SetHref(link *html.Node, href string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range link.Attr {
		if link.Attr[i].Key == "href" {
			link.Attr[i].Val = href
			return
		}
	}

	link.Attr = append(link.Attr, html.Attribute{Key: "href", Val: href})
}

// AppendStylesheet adds a new stylesheet link as the last child of <head>.
func (d *HTMLDocument) AppendStylesheet(href string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	head := findElement(d.root, atom.Head)
	if head == nil {
		return errors.New("document has no <head>")
	}

	head.AppendChild(&html.Node{
		Type:     html.ElementNode,
		Data:     "link",
		DataAtom: atom.Link,
		Attr: []html.Attribute{
			{Key: "rel", Val: "stylesheet"},
			{Key: "href", Val: href},
		},
	})

	return nil
}

// Reload discards every in-place change and re-reads the page.
func (d *HTMLDocument) Reload(ctx context.Context) error {
	root, err := loadPage(ctx, d.source)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.root = root
	d.reloads++
	d.mu.Unlock()

	return nil
}

// Reloads returns how many times Reload succeeded.
func (d *HTMLDocument) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.reloads
}

// Render serializes the current document.
func (d *HTMLDocument) Render() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("rendering page: %w", err)
	}

	return buf.String(), nil
}

func isStylesheetLink(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Link {
		return false
	}

	for _, rel := range strings.Fields(attr(n, "rel")) {
		if strings.EqualFold(rel, "stylesheet") {
			return true
		}
	}

	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}

	return nil
}
