package client

import "strings"

// Kind is the closed set of file kinds the router dispatches on.
type Kind int

const (
	// KindOther gets no type-specific handling.
	KindOther Kind = iota
	// KindScript is hot-swapped through the module registry.
	KindScript
	// KindStylesheet has its links cache-busted.
	KindStylesheet
	// KindMarkup forces a full page reload.
	KindMarkup
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindScript:
		return "script"
	case KindStylesheet:
		return "stylesheet"
	case KindMarkup:
		return "markup"
	default:
		return "other"
	}
}

// Classify maps a path to its Kind by suffix alone. Matching is
// case-sensitive, so "APP.JS" is KindOther.
func Classify(path string) Kind {
	switch {
	case strings.HasSuffix(path, ".js"):
		return KindScript
	case strings.HasSuffix(path, ".css"):
		return KindStylesheet
	case strings.HasSuffix(path, ".html"):
		return KindMarkup
	default:
		return KindOther
	}
}
