package mirror

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/livemirror/internal/fingerprint"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func newSync(t *testing.T, src, dest string) *Synchronizer {
	t.Helper()

	s, err := New(Options{Src: src, Dest: dest, Workers: 4, Logger: discardLogger()})
	require.NoError(t, err)

	return s
}

func readFile(t *testing.T, p string) string {
	t.Helper()

	data, err := os.ReadFile(p)
	require.NoError(t, err)

	return string(data)
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_RequiresDirs(t *testing.T) {
	_, err := New(Options{Dest: "b"})
	assert.ErrorContains(t, err, "source directory is required")

	_, err = New(Options{Src: "a"})
	assert.ErrorContains(t, err, "destination directory is required")
}

func TestNew_SameDir(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{Src: dir, Dest: dir})
	assert.ErrorContains(t, err, "same directory")
}

// ---------------------------------------------------------------------------
// IgnoreSet
// ---------------------------------------------------------------------------

func TestIgnoreSet_Match(t *testing.T) {
	s := NewIgnoreSet([]string{".git", "node_modules", "vendor/cache", ""})

	tests := []struct {
		rel  string
		want bool
	}{
		{".git", true},
		{".git/HEAD", true},
		{"pkg/.git/config", true},
		{"node_modules/react/index.js", true},
		{"a/b/node_modules/x.js", true},
		{"vendor/cache/x", true},
		{"vendor/other/x", false},
		{".gitignore", false},
		{"app.js", false},
		{"", false},
		{".", false},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Match(tt.rel))
		})
	}
}

func TestIgnoreSet_ExcludeDirIsAnchored(t *testing.T) {
	root := t.TempDir()
	s := NewIgnoreSet(nil)

	assert.True(t, s.ExcludeDir(root, filepath.Join(root, "build")))
	assert.True(t, s.Match("build"))
	assert.True(t, s.Match("build/app.js"))
	assert.False(t, s.Match("assets/build/app.js"))
	assert.False(t, s.Match("buildinfo.txt"))
}

func TestIgnoreSet_ExcludeDirOutsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewIgnoreSet(nil)

	assert.False(t, s.ExcludeDir(root, root))
	assert.False(t, s.ExcludeDir(root, filepath.Dir(root)))
	assert.False(t, s.ExcludeDir(filepath.Join(root, "src"), filepath.Join(root, "src-build")))
}

// ---------------------------------------------------------------------------
// Reconcile
// ---------------------------------------------------------------------------

func TestReconcile_CopiesTree(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"index.html":      "<html></html>",
		"js/app.js":       "console.log(1)",
		"css/site/a.css":  "body{}",
		"deep/a/b/c/d.md": "deep",
	})

	stats, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Copied.Load())
	assert.Equal(t, int64(0), stats.Failed.Load())
	assert.Equal(t, "console.log(1)", readFile(t, filepath.Join(dest, "js", "app.js")))
	assert.Equal(t, "deep", readFile(t, filepath.Join(dest, "deep", "a", "b", "c", "d.md")))
}

func TestReconcile_Idempotent(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"a.js":     "a",
		"sub/b.js": "b",
	})

	s := newSync(t, src, dest)

	_, err := s.Reconcile(context.Background())
	require.NoError(t, err)

	// Backdate the mirror so any rewrite would be visible in the mtime.
	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	for _, rel := range []string{"a.js", filepath.Join("sub", "b.js")} {
		require.NoError(t, os.Chtimes(filepath.Join(dest, rel), old, old))
	}

	stats, err := s.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.Copied.Load())
	assert.Equal(t, int64(2), stats.Unchanged.Load())

	info, err := os.Stat(filepath.Join(dest, "a.js"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "unchanged file must not be rewritten")
}

func TestReconcile_OverwritesChangedContent(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.css": "new"})
	writeTree(t, dest, map[string]string{"a.css": "old"})

	stats, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Copied.Load())
	assert.Equal(t, "new", readFile(t, filepath.Join(dest, "a.css")))
}

func TestReconcile_SkipsReservedDirsAtAnyDepth(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		".git/HEAD":                     "ref",
		"node_modules/lib/index.js":     "x",
		"pkg/node_modules/dep/index.js": "y",
		"pkg/.git/config":               "z",
		"pkg/main.js":                   "main",
	})

	stats, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Copied.Load())
	assert.FileExists(t, filepath.Join(dest, "pkg", "main.js"))
	assert.NoDirExists(t, filepath.Join(dest, ".git"))
	assert.NoDirExists(t, filepath.Join(dest, "node_modules"))
	assert.NoDirExists(t, filepath.Join(dest, "pkg", "node_modules"))
	assert.NoDirExists(t, filepath.Join(dest, "pkg", ".git"))
}

func TestReconcile_FileBecomesDirectory(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"assets/logo.svg": "<svg/>"})
	// Mirror still has "assets" as a plain file.
	writeTree(t, dest, map[string]string{"assets": "stale file"})

	_, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dest, "assets"))
	assert.Equal(t, "<svg/>", readFile(t, filepath.Join(dest, "assets", "logo.svg")))
}

func TestReconcile_DirectoryBecomesFile(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"config": "now a file"})
	writeTree(t, dest, map[string]string{"config/old.json": "{}"})

	_, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "now a file", readFile(t, filepath.Join(dest, "config")))
}

func TestReconcile_CreatesMissingDest(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "build", "out")
	writeTree(t, src, map[string]string{"a.txt": "a"})

	_, err := newSync(t, src, dest).Reconcile(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dest, "a.txt"))
}

func TestReconcile_MissingSource(t *testing.T) {
	s := newSync(t, filepath.Join(t.TempDir(), "nope"), t.TempDir())

	_, err := s.Reconcile(context.Background())
	assert.ErrorContains(t, err, "reading source directory")
}

func TestReconcile_DestInsideSource(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(src, "build")
	writeTree(t, src, map[string]string{
		"index.html":        "<html></html>",
		"assets/build/a.js": "a",
	})

	s := newSync(t, src, dest)

	stats, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Copied.Load())
	assert.Equal(t, "a", readFile(t, filepath.Join(dest, "assets", "build", "a.js")))
	assert.NoDirExists(t, filepath.Join(dest, "build"))

	// The second pass sees the mirror as reserved, not as new source files.
	stats, err = s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Copied.Load())
	assert.Equal(t, int64(2), stats.Unchanged.Load())
	assert.NoDirExists(t, filepath.Join(dest, "build"))

	changed, err := s.SyncPath(filepath.Join("build", "index.html"), false)
	require.NoError(t, err)
	assert.False(t, changed)

	planned, err := s.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, planned)
}

func TestReconcile_Cancelled(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a/b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newSync(t, src, dest).Reconcile(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconcile_ManyDirsSingleWorker(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()

	files := map[string]string{}
	for _, d := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[d+"/x/y/file.txt"] = d
	}

	writeTree(t, src, files)

	s, err := New(Options{Src: src, Dest: dest, Workers: 1, Logger: discardLogger()})
	require.NoError(t, err)

	stats, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), stats.Copied.Load())
}

func TestReconcile_Blake3(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	h, err := fingerprint.New(fingerprint.AlgorithmBLAKE3)
	require.NoError(t, err)

	s, err := New(Options{Src: src, Dest: dest, Hasher: h, Logger: discardLogger()})
	require.NoError(t, err)

	_, err = s.Reconcile(context.Background())
	require.NoError(t, err)

	stats, err := s.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Unchanged.Load())
}

// ---------------------------------------------------------------------------
// SyncPath
// ---------------------------------------------------------------------------

func TestSyncPath_CopiesAndSkipsUnchanged(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"js/app.js": "v1"})
	s := newSync(t, src, dest)

	changed, err := s.SyncPath(filepath.Join("js", "app.js"), false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "v1", readFile(t, filepath.Join(dest, "js", "app.js")))

	changed, err = s.SyncPath(filepath.Join("js", "app.js"), false)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSyncPath_Remove(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, dest, map[string]string{"gone.js": "x"})
	s := newSync(t, src, dest)

	changed, err := s.SyncPath("gone.js", true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoFileExists(t, filepath.Join(dest, "gone.js"))

	changed, err = s.SyncPath("gone.js", true)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSyncPath_SourceVanishedIsRemoval(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, dest, map[string]string{"a.js": "x"})

	changed, err := newSync(t, src, dest).SyncPath("a.js", false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoFileExists(t, filepath.Join(dest, "a.js"))
}

func TestSyncPath_Ignored(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{".git/HEAD": "ref"})

	changed, err := newSync(t, src, dest).SyncPath(filepath.Join(".git", "HEAD"), false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoDirExists(t, filepath.Join(dest, ".git"))
}

func TestSyncPath_ParentIsFile(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"lib/util.js": "u"})
	writeTree(t, dest, map[string]string{"lib": "file"})

	_, err := newSync(t, src, dest).SyncPath(filepath.Join("lib", "util.js"), false)
	require.NoError(t, err)
	assert.Equal(t, "u", readFile(t, filepath.Join(dest, "lib", "util.js")))
}

// ---------------------------------------------------------------------------
// Plan / Diff
// ---------------------------------------------------------------------------

func TestPlan(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{
		"same.txt":          "same",
		"changed.txt":       "new",
		"missing.txt":       "m",
		"dir":               "file now",
		"node_modules/x.js": "x",
	})
	writeTree(t, dest, map[string]string{
		"same.txt":    "same",
		"changed.txt": "old",
		"dir/x":       "x",
	})

	planned, err := newSync(t, src, dest).Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []PlannedCopy{
		{Path: "changed.txt", Reason: ReasonChanged},
		{Path: "dir", Reason: ReasonTypeChanged},
		{Path: "missing.txt", Reason: ReasonMissing},
	}, planned)

	// Plan never writes.
	assert.NoFileExists(t, filepath.Join(dest, "missing.txt"))
}

func TestPlan_ParentIsFile(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"lib/util.js": "u"})
	writeTree(t, dest, map[string]string{"lib": "file"})

	planned, err := newSync(t, src, dest).Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []PlannedCopy{
		{Path: "lib/util.js", Reason: ReasonTypeChanged},
	}, planned)
}

func TestDiff_Text(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"a.css": "body {\n  color: red;\n}\n"})
	writeTree(t, dest, map[string]string{"a.css": "body {\n  color: blue;\n}\n"})

	result, err := newSync(t, src, dest).Diff("a.css")
	require.NoError(t, err)
	assert.True(t, result.HasDifferences)
	assert.Contains(t, result.Unified, "-  color: blue;")
	assert.Contains(t, result.Unified, "+  color: red;")

	var buf bytes.Buffer
	WriteDiff(&buf, "a.css", result, false)
	assert.Contains(t, buf.String(), "mirror/a.css")
	assert.NotContains(t, buf.String(), "\033[")

	buf.Reset()
	WriteDiff(&buf, "a.css", result, true)
	assert.Contains(t, buf.String(), "\033[31m")
}

func TestDiff_MissingMirror(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"new.js": "let a = 1;\n"})

	result, err := newSync(t, src, dest).Diff("new.js")
	require.NoError(t, err)
	assert.True(t, result.HasDifferences)
	assert.Contains(t, result.Unified, "+let a = 1;")
}

func TestDiff_Binary(t *testing.T) {
	src, dest := t.TempDir(), t.TempDir()
	writeTree(t, src, map[string]string{"img.png": "\x89PNG\x00\x01"})

	result, err := newSync(t, src, dest).Diff("img.png")
	require.NoError(t, err)
	assert.True(t, result.Binary)

	var buf bytes.Buffer
	WriteDiff(&buf, "img.png", result, false)
	assert.Contains(t, buf.String(), "Binary files")
}
