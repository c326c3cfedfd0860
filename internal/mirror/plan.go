package mirror

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

// Reasons a path appears in a Plan.
const (
	ReasonMissing     = "missing"
	ReasonChanged     = "changed"
	ReasonTypeChanged = "type-changed"
)

// PlannedCopy is one file Reconcile would write.
type PlannedCopy struct {
	// Path is root-relative with forward slashes.
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// Plan walks Src like Reconcile but only reports which files would be
// copied. Results are sorted by path.
func (s *Synchronizer) Plan(ctx context.Context) ([]PlannedCopy, error) {
	var planned []PlannedCopy

	err := filepath.WalkDir(s.src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(s.src, path)
		if relErr != nil {
			return relErr
		}

		if rel == "." {
			return nil
		}

		if s.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		destPath := filepath.Join(s.dest, rel)

		info, statErr := os.Lstat(destPath)

		switch {
		case os.IsNotExist(statErr):
			planned = append(planned, PlannedCopy{Path: filepath.ToSlash(rel), Reason: ReasonMissing})
		case errors.Is(statErr, syscall.ENOTDIR), statErr == nil && !info.Mode().IsRegular():
			// ENOTDIR: a parent of the mirror path is a plain file.
			planned = append(planned, PlannedCopy{Path: filepath.ToSlash(rel), Reason: ReasonTypeChanged})
		case !s.hasher.Equal(path, destPath):
			planned = append(planned, PlannedCopy{Path: filepath.ToSlash(rel), Reason: ReasonChanged})
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(planned, func(i, j int) bool { return planned[i].Path < planned[j].Path })

	return planned, nil
}
