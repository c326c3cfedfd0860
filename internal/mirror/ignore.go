package mirror

import (
	"path"
	"path/filepath"
	"strings"
)

// DefaultIgnore lists the reserved path prefixes that are never mirrored:
// version-control metadata and the dependency cache.
var DefaultIgnore = []string{".git", "node_modules"}

// IgnoreSet matches root-relative, forward-slash paths against reserved
// prefixes. A plain name such as ".git" matches that segment at any depth;
// an entry containing a slash matches as a path prefix from the root.
type IgnoreSet struct {
	names    map[string]bool
	prefixes []string
}

// NewIgnoreSet builds an IgnoreSet from entries. Empty entries are dropped.
func NewIgnoreSet(entries []string) *IgnoreSet {
	s := &IgnoreSet{names: make(map[string]bool, len(entries))}

	for _, e := range entries {
		e = strings.Trim(path.Clean(strings.ReplaceAll(e, "\\", "/")), "/")
		if e == "" || e == "." {
			continue
		}

		if strings.Contains(e, "/") {
			s.prefixes = append(s.prefixes, e)
		} else {
			s.names[e] = true
		}
	}

	return s
}

// ExcludeDir reserves dir, an absolute or root-relative directory, when it
// lies strictly inside root. Unlike plain entries it is anchored at root,
// so excluding "build" leaves "assets/build" alone. It reports whether dir
// was inside root.
func (s *IgnoreSet) ExcludeDir(root, dir string) bool {
	rel, ok := nestedRel(root, dir)
	if !ok {
		return false
	}

	s.prefixes = append(s.prefixes, rel)

	return true
}

// nestedRel returns dir relative to root, with forward slashes, when dir
// lies strictly inside root.
func nestedRel(root, dir string) (string, bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}

	rel, err := filepath.Rel(absRoot, absDir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return filepath.ToSlash(rel), true
}

// Match reports whether rel lies under a reserved prefix.
func (s *IgnoreSet) Match(rel string) bool {
	if s == nil || rel == "" || rel == "." {
		return false
	}

	rel = strings.TrimPrefix(rel, "./")

	for _, seg := range strings.Split(rel, "/") {
		if s.names[seg] {
			return true
		}
	}

	for _, p := range s.prefixes {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}

	return false
}
