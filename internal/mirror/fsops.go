package mirror

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ensureDir creates dir (relative to root) and any missing parents below
// root. Any plain file occupying one of those slots is removed first, so a
// path that used to be a file can become a directory.
func ensureDir(root, rel string) error {
	if rel == "" || rel == "." {
		return os.MkdirAll(root, 0o755)
	}

	current := root

	for _, seg := range splitRel(rel) {
		current = filepath.Join(current, seg)

		info, err := os.Lstat(current)

		switch {
		case err == nil && info.IsDir():
			continue
		case err == nil:
			if rmErr := os.Remove(current); rmErr != nil {
				return fmt.Errorf("removing file in place of directory %s: %w", current, rmErr)
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("stat %s: %w", current, err)
		}

		if mkErr := os.Mkdir(current, 0o755); mkErr != nil && !os.IsExist(mkErr) {
			return fmt.Errorf("creating directory %s: %w", current, mkErr)
		}
	}

	return nil
}

// copyFile streams src to dst through a temporary sibling and renames it
// into place. An existing directory at dst is removed first.
func copyFile(src, dst string) error {
	if info, err := os.Lstat(dst); err == nil && info.IsDir() {
		if rmErr := os.RemoveAll(dst); rmErr != nil {
			return fmt.Errorf("removing directory in place of file %s: %w", dst, rmErr)
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".livemirror-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", dst, err)
	}

	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("copying %s: %w", src, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}

	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", dst, err)
	}

	return nil
}

func splitRel(rel string) []string {
	var out []string

	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if seg == "" || seg == "." {
			continue
		}

		out = append(out, seg)
	}

	return out
}
