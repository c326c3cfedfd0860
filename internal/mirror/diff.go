package mirror

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// maxDiffSize caps the files a preview will diff.
const maxDiffSize = 1 << 20

// DiffResult holds the unified diff between a mirror file and its source.
type DiffResult struct {
	Unified        string
	HasDifferences bool
	// Binary is set when either side is not text; Unified is empty then.
	Binary bool
}

// Diff computes the unified diff that copying rel would apply to the
// mirror. A missing mirror file diffs against the empty string.
func (s *Synchronizer) Diff(rel string) (*DiffResult, error) {
	srcData, err := readForDiff(filepath.Join(s.src, rel))
	if err != nil {
		return nil, err
	}

	destData, err := readForDiff(filepath.Join(s.dest, rel))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if isBinary(srcData) || isBinary(destData) {
		return &DiffResult{Binary: true, HasDifferences: !bytes.Equal(srcData, destData)}, nil
	}

	label := filepath.ToSlash(rel)

	diff := difflib.UnifiedDiff{
		A:        splitLines(string(destData)),
		B:        splitLines(string(srcData)),
		FromFile: "mirror/" + label,
		ToFile:   "source/" + label,
		Context:  3,
	}

	unified, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, fmt.Errorf("computing diff for %s: %w", rel, err)
	}

	return &DiffResult{Unified: unified, HasDifferences: unified != ""}, nil
}

// WriteDiff writes a formatted diff to w with optional ANSI colors.
func WriteDiff(w io.Writer, rel string, result *DiffResult, color bool) {
	switch {
	case !result.HasDifferences:
		return
	case result.Binary:
		_, _ = fmt.Fprintf(w, "Binary files mirror/%s and source/%s differ\n", rel, rel)
		return
	}

	for _, line := range strings.Split(strings.TrimRight(result.Unified, "\n"), "\n") {
		if color {
			writeColorLine(w, line)
		} else {
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

// writeColorLine writes a single diff line with ANSI color codes.
func writeColorLine(w io.Writer, line string) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	switch {
	case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, line, reset)
	case strings.HasPrefix(line, "@@"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", cyan, line, reset)
	case strings.HasPrefix(line, "-"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", red, line, reset)
	case strings.HasPrefix(line, "+"):
		_, _ = fmt.Fprintf(w, "%s%s%s\n", green, line, reset)
	default:
		_, _ = fmt.Fprintln(w, line)
	}
}

func readForDiff(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.Size() > maxDiffSize {
		return nil, fmt.Errorf("%s is too large to diff (%d bytes)", path, info.Size())
	}

	return os.ReadFile(path)
}

// isBinary applies the usual NUL-byte heuristic over the first 8000 bytes.
func isBinary(data []byte) bool {
	if len(data) > 8000 {
		data = data[:8000]
	}

	return bytes.IndexByte(data, 0) >= 0
}

// splitLines splits a string into lines for diff processing.
// Each element includes a trailing newline for difflib compatibility.
func splitLines(s string) []string {
	if s == "" {
		return []string{""}
	}

	return strings.SplitAfter(s, "\n")
}
