package watch

import "github.com/fsnotify/fsnotify"

// Kind classifies a raw filesystem change.
type Kind int

const (
	// KindOther covers events the coalescer ignores, such as a new
	// directory or a permission change.
	KindOther Kind = iota
	KindAdded
	KindModified
	KindRemoved
)

// String returns the event name used in logs.
func (k Kind) String() string {
	switch k {
	case KindAdded:
		return "add"
	case KindModified:
		return "change"
	case KindRemoved:
		return "unlink"
	default:
		return "other"
	}
}

// ChangeEvent is one raw change relative to the watched root.
type ChangeEvent struct {
	// Path is root-relative in OS form.
	Path string
	Kind Kind
}

// kindOf maps an fsnotify operation to a Kind. isDir reports whether the
// path is currently a directory. Removal of a watched directory never gets
// here; the watcher drops it like an unlinkDir.
func kindOf(op fsnotify.Op, isDir bool) Kind {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return KindRemoved
	case isDir:
		return KindOther
	case op.Has(fsnotify.Create):
		return KindAdded
	case op.Has(fsnotify.Write):
		return KindModified
	default:
		return KindOther
	}
}
